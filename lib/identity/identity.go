// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/crypto"
)

// NonceSize is the size of the random challenge nonce.
const NonceSize = 32

// MaxChallengeAge bounds how long a challenge stays answerable. A
// proof arriving later than this fails verification regardless of its
// signature, limiting the replay window to the skew two live peers
// can actually accumulate mid-handshake.
const MaxChallengeAge = 60 * time.Second

var (
	// ErrChallengeExpired means the proof arrived after
	// MaxChallengeAge.
	ErrChallengeExpired = errors.New("identity challenge expired")

	// ErrProofInvalid means the signature does not verify under the
	// device key on record for the claimed identity.
	ErrProofInvalid = errors.New("identity proof invalid")
)

// Claim is the identity a connecting peer asserts: a user and the
// specific device speaking for them.
type Claim struct {
	UserID   string `cbor:"userId"`
	DeviceID string `cbor:"deviceId"`
}

// Challenge is a single-use identity challenge. The claimed identity
// is bound into the signed material, so a proof answers exactly one
// challenger's question about exactly one claim.
type Challenge struct {
	UserID    string          `cbor:"userId"`
	DeviceID  string          `cbor:"deviceId"`
	Nonce     [NonceSize]byte `cbor:"nonce"`
	Timestamp int64           `cbor:"timestamp"`
}

// NewChallenge issues a fresh challenge for a claim.
func NewChallenge(claim Claim, now time.Time) (Challenge, error) {
	challenge := Challenge{
		UserID:    claim.UserID,
		DeviceID:  claim.DeviceID,
		Timestamp: now.UnixMilli(),
	}
	if _, err := rand.Read(challenge.Nonce[:]); err != nil {
		return Challenge{}, fmt.Errorf("generating challenge nonce: %w", err)
	}
	return challenge, nil
}

// Prove signs the challenge with the claimed device's signing key.
func Prove(challenge Challenge, deviceKeys crypto.SignKeypair) (crypto.Signature, error) {
	message, err := challengeMessage(challenge)
	if err != nil {
		return crypto.Signature{}, err
	}
	return deviceKeys.Sign(message), nil
}

// Verify checks a proof against the device signing key the team has
// on record for the claimed identity. The caller resolves the key
// from team state; an unknown device is the caller's error, not this
// package's.
func Verify(challenge Challenge, proof crypto.Signature, deviceKey crypto.SignPublicKey, now time.Time) error {
	age := now.UnixMilli() - challenge.Timestamp
	if age < 0 || age > MaxChallengeAge.Milliseconds() {
		return fmt.Errorf("challenge issued at %d checked at %d: %w",
			challenge.Timestamp, now.UnixMilli(), ErrChallengeExpired)
	}
	message, err := challengeMessage(challenge)
	if err != nil {
		return err
	}
	if !deviceKey.Verify(message, proof) {
		return fmt.Errorf("proof for %s/%s: %w", challenge.UserID, challenge.DeviceID, ErrProofInvalid)
	}
	return nil
}

// challengeMessage is the canonical byte string a proof signs.
func challengeMessage(challenge Challenge) ([]byte, error) {
	message, err := codec.Marshal(challenge)
	if err != nil {
		return nil, fmt.Errorf("encoding challenge: %w", err)
	}
	return message, nil
}
