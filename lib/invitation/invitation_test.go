// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package invitation

import (
	"errors"
	"testing"
	"time"
)

func TestNewSeed(t *testing.T) {
	seed, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	if len(seed) != SeedLength {
		t.Errorf("seed length = %d, want %d", len(seed), SeedLength)
	}
	for _, r := range string(seed) {
		if r < 'a' || r > 'z' {
			t.Errorf("seed contains non-alphabetic %q", r)
		}
	}

	other, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	if seed == other {
		t.Error("two generated seeds are identical")
	}
}

func TestNormalizeSeed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Seed
		ok    bool
	}{
		{"already normalized", "abcdefghijklmnop", "abcdefghijklmnop", true},
		{"mixed case", "AbCdEfGhIjKlMnOp", "abcdefghijklmnop", true},
		{"dashes and spaces", " abcd-efgh ijkl-mnop\n", "abcdefghijklmnop", true},
		{"too short", "abcdef", "", false},
		{"too long", "abcdefghijklmnopq", "", false},
		{"digits", "abcdefghijklmno1", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSeed(tt.input)
			if tt.ok {
				if err != nil {
					t.Fatalf("NormalizeSeed(%q) error: %v", tt.input, err)
				}
				if got != tt.want {
					t.Errorf("NormalizeSeed(%q) = %q, want %q", tt.input, got, tt.want)
				}
				return
			}
			if !errors.Is(err, ErrMalformedSeed) {
				t.Errorf("NormalizeSeed(%q): got %v, want ErrMalformedSeed", tt.input, err)
			}
		})
	}
}

func TestProofRoundTrip(t *testing.T) {
	seed, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	inv := New(seed, 1, time.Time{}, "")

	proof, err := GenerateProof(seed, "charlie")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	if proof.ID != inv.ID {
		t.Errorf("proof id %s does not match invitation id %s", proof.ID, inv.ID)
	}
	if err := inv.Validate(proof, time.Now()); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestValidate_WrongSeed(t *testing.T) {
	seed, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	wrongSeed, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	inv := New(seed, 1, time.Time{}, "")

	// A proof from the wrong seed has a different id.
	proof, err := GenerateProof(wrongSeed, "mallory")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	if err := inv.Validate(proof, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Validate() with wrong seed: got %v, want ErrNotFound", err)
	}

	// A forged proof with the right id but wrong signature.
	forged, err := GenerateProof(wrongSeed, "mallory")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	forged.ID = inv.ID
	if err := inv.Validate(forged, time.Now()); !errors.Is(err, ErrProofInvalid) {
		t.Errorf("Validate() with forged proof: got %v, want ErrProofInvalid", err)
	}
}

func TestValidate_TamperedUserName(t *testing.T) {
	seed, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	inv := New(seed, 1, time.Time{}, "")
	proof, err := GenerateProof(seed, "charlie")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	proof.UserName = "mallory"
	if err := inv.Validate(proof, time.Now()); !errors.Is(err, ErrProofInvalid) {
		t.Errorf("Validate() with tampered user name: got %v, want ErrProofInvalid", err)
	}
}

func TestValidate_Expiration(t *testing.T) {
	seed, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	deadline := time.Now().Add(time.Hour)
	inv := New(seed, 1, deadline, "")
	proof, err := GenerateProof(seed, "charlie")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}

	if err := inv.Validate(proof, deadline.Add(-time.Minute)); err != nil {
		t.Errorf("Validate() before deadline: %v", err)
	}
	if err := inv.Validate(proof, deadline.Add(time.Minute)); !errors.Is(err, ErrExpired) {
		t.Errorf("Validate() after deadline: got %v, want ErrExpired", err)
	}
}

func TestStarterKeys_Deterministic(t *testing.T) {
	seed, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	a := StarterKeys(seed, "charlie")
	b := StarterKeys(seed, "charlie")
	if a.Public() != b.Public() {
		t.Error("same seed derived different starter keys")
	}
}

func TestNew_Defaults(t *testing.T) {
	seed, err := NewSeed()
	if err != nil {
		t.Fatalf("NewSeed() error: %v", err)
	}
	inv := New(seed, 0, time.Time{}, "")
	if inv.MaxUses != 1 {
		t.Errorf("MaxUses = %d, want 1", inv.MaxUses)
	}
	if inv.Expiration != 0 {
		t.Errorf("Expiration = %d, want 0", inv.Expiration)
	}
	if inv.ID != DeriveID(seed) {
		t.Error("ID does not match DeriveID")
	}
}
