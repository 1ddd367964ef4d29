// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package keyset

import (
	"testing"

	"github.com/quorate/quorate/lib/codec"
)

func TestNew_GenerationZero(t *testing.T) {
	k, err := New(TeamScope())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if k.Generation != 0 {
		t.Errorf("Generation = %d, want 0", k.Generation)
	}
	if k.Scope != TeamScope() {
		t.Errorf("Scope = %v, want team scope", k.Scope)
	}
	if k.SignatureSeed.IsZero() || k.EncryptionSeed.IsZero() {
		t.Error("New() left a seed unset")
	}
}

func TestNew_Unique(t *testing.T) {
	a, err := New(MemberScope("alice"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	b, err := New(MemberScope("alice"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if a.SignatureSeed == b.SignatureSeed {
		t.Error("two generated keysets share a signature seed")
	}
	if a.Public().Encryption == b.Public().Encryption {
		t.Error("two generated keysets share an encryption key")
	}
}

func TestFromSeed_Deterministic(t *testing.T) {
	seed := []byte("zmxncbvalskdjfhg")
	a := FromSeed(EphemeralScope(), seed)
	b := FromSeed(EphemeralScope(), seed)
	if a.Public() != b.Public() {
		t.Error("same seed derived different public keysets")
	}

	other := FromSeed(EphemeralScope(), []byte("qwertyuiopasdfgh"))
	if a.Public().Signature == other.Public().Signature {
		t.Error("different seeds derived identical signing keys")
	}
}

func TestRotate_IncrementsGeneration(t *testing.T) {
	k, err := New(TeamScope())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	next, err := k.Rotate()
	if err != nil {
		t.Fatalf("Rotate() error: %v", err)
	}
	if next.Generation != 1 {
		t.Errorf("Generation = %d, want 1", next.Generation)
	}
	if next.Scope != k.Scope {
		t.Errorf("Rotate() changed scope: %v -> %v", k.Scope, next.Scope)
	}
	if next.SignatureSeed == k.SignatureSeed {
		t.Error("Rotate() kept the old signature seed")
	}
	if next.SymmetricKey() == k.SymmetricKey() {
		t.Error("Rotate() kept the old symmetric key")
	}
}

func TestPublic_OmitsSecrets(t *testing.T) {
	k, err := New(DeviceScope("laptop"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	encoded, err := codec.Marshal(k.Public())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	// The public encoding must not contain either seed.
	for _, seed := range [][]byte{k.SignatureSeed[:], k.EncryptionSeed[:]} {
		if containsSubslice(encoded, seed) {
			t.Fatal("public keyset encoding leaks seed material")
		}
	}
}

func TestKeysetRoundTrip(t *testing.T) {
	k, err := New(RoleScope("managers"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	encoded, err := codec.Marshal(k)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var decoded Keyset
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded != k {
		t.Errorf("round trip changed keyset: %+v -> %+v", k, decoded)
	}
	if decoded.Public() != k.Public() {
		t.Error("round trip changed derived public keys")
	}
}

func TestScopeString(t *testing.T) {
	tests := []struct {
		scope Scope
		want  string
	}{
		{TeamScope(), "TEAM/TEAM"},
		{AdminScope(), "ROLE/ADMIN"},
		{MemberScope("alice"), "MEMBER/alice"},
		{DeviceScope("alice-laptop"), "DEVICE/alice-laptop"},
		{ServerScope("relay.example.com"), "SERVER/relay.example.com"},
	}
	for _, tt := range tests {
		if got := tt.scope.String(); got != tt.want {
			t.Errorf("Scope.String() = %q, want %q", got, tt.want)
		}
	}
}

func containsSubslice(haystack, needle []byte) bool {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
