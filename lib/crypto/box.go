// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// ErrCiphertextInvalid is returned when a sealed box or AEAD payload
// fails to authenticate: wrong key, truncated data, or tampering.
var ErrCiphertextInvalid = errors.New("ciphertext invalid")

// BoxPublicKey is a Curve25519 public encryption key. Lockbox
// recipients and session seed envelopes are addressed to these.
type BoxPublicKey [32]byte

// BoxSecretKey is a Curve25519 secret encryption key.
type BoxSecretKey [32]byte

// BoxKeypair is a Curve25519 keypair for anonymous sealed boxes.
type BoxKeypair struct {
	Public BoxPublicKey
	Secret BoxSecretKey
}

// NewBoxKeypair generates a random Curve25519 keypair.
func NewBoxKeypair() (BoxKeypair, error) {
	publicKey, secretKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return BoxKeypair{}, fmt.Errorf("generating encryption keypair: %w", err)
	}
	return BoxKeypair{Public: *publicKey, Secret: *secretKey}, nil
}

// BoxKeypairFromSeed deterministically derives a Curve25519 keypair
// from 32 bytes of seed material. The seed is used directly as the
// secret scalar; clamping happens inside the scalar multiplication.
func BoxKeypairFromSeed(seed Hash) BoxKeypair {
	var pair BoxKeypair
	pair.Secret = BoxSecretKey(seed)
	public, err := curve25519.X25519(seed[:], curve25519.Basepoint)
	if err != nil {
		// Only possible for a low-order point, which the basepoint
		// is not.
		panic("crypto: deriving encryption public key: " + err.Error())
	}
	copy(pair.Public[:], public)
	return pair
}

// Seal encrypts plaintext to the recipient's public key using an
// anonymous sealed box (ephemeral sender key). Only the holder of the
// matching secret key can open it; the sender retains no ability to
// decrypt.
func Seal(plaintext []byte, recipient BoxPublicKey) ([]byte, error) {
	recipientKey := [32]byte(recipient)
	sealed, err := box.SealAnonymous(nil, plaintext, &recipientKey, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sealing to recipient: %w", err)
	}
	return sealed, nil
}

// Open decrypts an anonymous sealed box with the recipient keypair.
// Returns ErrCiphertextInvalid if the box was not sealed to this key
// or has been tampered with.
func Open(ciphertext []byte, recipient BoxKeypair) ([]byte, error) {
	publicKey := [32]byte(recipient.Public)
	secretKey := [32]byte(recipient.Secret)
	plaintext, ok := box.OpenAnonymous(nil, ciphertext, &publicKey, &secretKey)
	if !ok {
		return nil, ErrCiphertextInvalid
	}
	return plaintext, nil
}

// String returns the lowercase hex encoding of the public key.
func (p BoxPublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether the public key is unset.
func (p BoxPublicKey) IsZero() bool {
	return p == BoxPublicKey{}
}
