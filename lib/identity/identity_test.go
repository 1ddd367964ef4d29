// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/quorate/quorate/lib/crypto"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestProveVerify(t *testing.T) {
	keys, err := crypto.NewSignKeypair()
	if err != nil {
		t.Fatalf("NewSignKeypair() error: %v", err)
	}
	claim := Claim{UserID: "alice", DeviceID: "alice-laptop"}

	challenge, err := NewChallenge(claim, testEpoch)
	if err != nil {
		t.Fatalf("NewChallenge() error: %v", err)
	}
	proof, err := Prove(challenge, keys)
	if err != nil {
		t.Fatalf("Prove() error: %v", err)
	}
	if err := Verify(challenge, proof, keys.Public, testEpoch.Add(time.Second)); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	keys, err := crypto.NewSignKeypair()
	if err != nil {
		t.Fatalf("NewSignKeypair() error: %v", err)
	}
	other, err := crypto.NewSignKeypair()
	if err != nil {
		t.Fatalf("NewSignKeypair() error: %v", err)
	}

	challenge, err := NewChallenge(Claim{UserID: "alice", DeviceID: "alice-laptop"}, testEpoch)
	if err != nil {
		t.Fatalf("NewChallenge() error: %v", err)
	}
	proof, err := Prove(challenge, keys)
	if err != nil {
		t.Fatalf("Prove() error: %v", err)
	}
	if err := Verify(challenge, proof, other.Public, testEpoch); !errors.Is(err, ErrProofInvalid) {
		t.Fatalf("Verify() with wrong key error = %v, want ErrProofInvalid", err)
	}
}

func TestVerifyRejectsTamperedClaim(t *testing.T) {
	keys, err := crypto.NewSignKeypair()
	if err != nil {
		t.Fatalf("NewSignKeypair() error: %v", err)
	}
	challenge, err := NewChallenge(Claim{UserID: "alice", DeviceID: "alice-laptop"}, testEpoch)
	if err != nil {
		t.Fatalf("NewChallenge() error: %v", err)
	}
	proof, err := Prove(challenge, keys)
	if err != nil {
		t.Fatalf("Prove() error: %v", err)
	}

	// A proof for alice's claim must not verify for a challenge
	// naming someone else.
	challenge.UserID = "mallory"
	if err := Verify(challenge, proof, keys.Public, testEpoch); !errors.Is(err, ErrProofInvalid) {
		t.Fatalf("Verify() of tampered claim error = %v, want ErrProofInvalid", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	keys, err := crypto.NewSignKeypair()
	if err != nil {
		t.Fatalf("NewSignKeypair() error: %v", err)
	}
	challenge, err := NewChallenge(Claim{UserID: "alice", DeviceID: "alice-laptop"}, testEpoch)
	if err != nil {
		t.Fatalf("NewChallenge() error: %v", err)
	}
	proof, err := Prove(challenge, keys)
	if err != nil {
		t.Fatalf("Prove() error: %v", err)
	}

	late := testEpoch.Add(MaxChallengeAge + time.Second)
	if err := Verify(challenge, proof, keys.Public, late); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("Verify() after expiry error = %v, want ErrChallengeExpired", err)
	}
	early := testEpoch.Add(-time.Second)
	if err := Verify(challenge, proof, keys.Public, early); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("Verify() before issuance error = %v, want ErrChallengeExpired", err)
	}
}
