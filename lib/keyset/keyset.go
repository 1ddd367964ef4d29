// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package keyset

import (
	"fmt"

	"github.com/quorate/quorate/lib/crypto"
)

// Keyset is a generational key bundle with secrets: a signing keypair
// and an encryption keypair bound to a scope. Keysets with secrets
// are confined to the local process; they travel between principals
// only sealed inside lockboxes.
type Keyset struct {
	Scope      Scope  `cbor:"scope"`
	Generation uint32 `cbor:"generation"`

	// SignatureSeed and EncryptionSeed are the 32-byte seeds the
	// keypairs are derived from. Storing seeds rather than expanded
	// keys keeps the sealed form compact and makes derivation
	// deterministic on every holder.
	SignatureSeed  crypto.Hash `cbor:"signatureSeed"`
	EncryptionSeed crypto.Hash `cbor:"encryptionSeed"`
}

// PublicKeyset is the redaction of a Keyset that is safe to publish:
// scope, generation, and the two public keys. This is what action
// payloads record on the graph and what lockboxes address.
type PublicKeyset struct {
	Scope      Scope                `cbor:"scope"`
	Generation uint32               `cbor:"generation"`
	Signature  crypto.SignPublicKey `cbor:"signature"`
	Encryption crypto.BoxPublicKey  `cbor:"encryption"`
}

// New generates a random generation-0 keyset for the scope.
func New(scope Scope) (Keyset, error) {
	return NewGeneration(scope, 0)
}

// NewGeneration generates a random keyset for the scope at the given
// generation. Used during rotation, where the successor keyset's
// generation is the predecessor's plus one.
func NewGeneration(scope Scope, generation uint32) (Keyset, error) {
	var k Keyset
	k.Scope = scope
	k.Generation = generation
	if _, err := randomHash(&k.SignatureSeed); err != nil {
		return Keyset{}, fmt.Errorf("generating signature seed: %w", err)
	}
	if _, err := randomHash(&k.EncryptionSeed); err != nil {
		return Keyset{}, fmt.Errorf("generating encryption seed: %w", err)
	}
	return k, nil
}

// FromSeed deterministically derives a generation-0 keyset from seed
// material. Both sides of an invitation derive the same ephemeral
// keyset from the shared invitation seed.
func FromSeed(scope Scope, seed []byte) Keyset {
	return Keyset{
		Scope:          scope,
		Generation:     0,
		SignatureSeed:  crypto.DeriveKey(crypto.DomainKeysetSeed, []byte("signature"), seed),
		EncryptionSeed: crypto.DeriveKey(crypto.DomainKeysetSeed, []byte("encryption"), seed),
	}
}

// SignKeypair expands the keyset's signing keypair.
func (k Keyset) SignKeypair() crypto.SignKeypair {
	return crypto.SignKeypairFromSeed(k.SignatureSeed)
}

// BoxKeypair expands the keyset's encryption keypair.
func (k Keyset) BoxKeypair() crypto.BoxKeypair {
	return crypto.BoxKeypairFromSeed(k.EncryptionSeed)
}

// SymmetricKey derives the keyset's symmetric key, used for AEAD
// encryption of payloads addressed to everyone holding this scope's
// secrets (team messages, role payloads).
func (k Keyset) SymmetricKey() crypto.SymmetricKey {
	derived := crypto.DeriveKey(crypto.DomainSymmetric, k.EncryptionSeed[:])
	return crypto.SymmetricKey(derived)
}

// Public returns the publishable redaction of the keyset.
func (k Keyset) Public() PublicKeyset {
	return PublicKeyset{
		Scope:      k.Scope,
		Generation: k.Generation,
		Signature:  k.SignKeypair().Public,
		Encryption: k.BoxKeypair().Public,
	}
}

// Rotate generates a random successor keyset: same scope, generation
// incremented by one.
func (k Keyset) Rotate() (Keyset, error) {
	successor, err := NewGeneration(k.Scope, k.Generation+1)
	if err != nil {
		return Keyset{}, fmt.Errorf("rotating %s: %w", k.Scope, err)
	}
	return successor, nil
}

// IsZero reports whether the keyset is unset.
func (k Keyset) IsZero() bool {
	return k.Scope.IsZero() && k.SignatureSeed.IsZero() && k.EncryptionSeed.IsZero()
}

// IsZero reports whether the public keyset is unset.
func (p PublicKeyset) IsZero() bool {
	return p.Scope.IsZero() && p.Signature.IsZero() && p.Encryption.IsZero()
}

// String renders scope and generation, the form used in logs.
func (p PublicKeyset) String() string {
	return fmt.Sprintf("%s#%d", p.Scope, p.Generation)
}
