// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrSignatureInvalid is returned by callers of Verify when a
// signature fails to validate against the expected public key.
var ErrSignatureInvalid = errors.New("signature invalid")

// SignatureSize is the size of an Ed25519 detached signature.
const SignatureSize = ed25519.SignatureSize

// SeedSize is the size of the seed material for deterministic key
// generation (both signing and encryption keypairs).
const SeedSize = 32

// Signature is a 64-byte Ed25519 detached signature.
type Signature [SignatureSize]byte

// SignPublicKey is an Ed25519 public key. Safe to publish; recorded
// on the graph for every member and device.
type SignPublicKey [ed25519.PublicKeySize]byte

// SignKeypair is an Ed25519 keypair. The secret half never leaves the
// local process except sealed inside a lockbox.
type SignKeypair struct {
	Public SignPublicKey
	Secret ed25519.PrivateKey
}

// NewSignKeypair generates a random Ed25519 keypair.
func NewSignKeypair() (SignKeypair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SignKeypair{}, fmt.Errorf("generating signing keypair: %w", err)
	}
	var pair SignKeypair
	copy(pair.Public[:], publicKey)
	pair.Secret = privateKey
	return pair, nil
}

// SignKeypairFromSeed deterministically derives an Ed25519 keypair
// from 32 bytes of seed material. Used for invitation starter keys,
// where both the inviter and the invitee must derive the same keys
// from a shared seed.
func SignKeypairFromSeed(seed Hash) SignKeypair {
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	var pair SignKeypair
	copy(pair.Public[:], privateKey.Public().(ed25519.PublicKey))
	pair.Secret = privateKey
	return pair
}

// Sign produces a detached signature over message.
func (k SignKeypair) Sign(message []byte) Signature {
	var signature Signature
	copy(signature[:], ed25519.Sign(k.Secret, message))
	return signature
}

// Verify reports whether signature is a valid signature of message
// under this public key.
func (p SignPublicKey) Verify(message []byte, signature Signature) bool {
	return ed25519.Verify(p[:], message, signature[:])
}

// String returns the lowercase hex encoding of the public key.
func (p SignPublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether the public key is unset.
func (p SignPublicKey) IsZero() bool {
	return p == SignPublicKey{}
}
