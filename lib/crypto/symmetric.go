// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SymmetricKeySize is the size of all symmetric keys in the system:
// per-scope keys derived from keysets, the device-local storage key,
// and connection session keys.
const SymmetricKeySize = chacha20poly1305.KeySize

// SymmetricOverhead is the per-message byte overhead of SealSymmetric:
// a 24-byte XChaCha20-Poly1305 nonce plus the 16-byte Poly1305 tag.
const SymmetricOverhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// SymmetricKey is an XChaCha20-Poly1305 key.
type SymmetricKey [SymmetricKeySize]byte

// NewSymmetricKey generates a random symmetric key.
func NewSymmetricKey() (SymmetricKey, error) {
	var key SymmetricKey
	if _, err := rand.Read(key[:]); err != nil {
		return SymmetricKey{}, fmt.Errorf("generating symmetric key: %w", err)
	}
	return key, nil
}

// SealSymmetric encrypts plaintext under key with a random 24-byte
// nonce, binding aad as additional authenticated data. The output is
// nonce || ciphertext || tag.
func SealSymmetric(key SymmetricKey, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}
	out := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(out[:chacha20poly1305.NonceSizeX]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(out, out[:chacha20poly1305.NonceSizeX], plaintext, aad), nil
}

// OpenSymmetric decrypts a SealSymmetric payload. Returns
// ErrCiphertextInvalid on authentication failure, including an aad
// that does not match the one bound at seal time.
func OpenSymmetric(key SymmetricKey, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < SymmetricOverhead {
		return nil, ErrCiphertextInvalid
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, sealed[chacha20poly1305.NonceSizeX:], aad)
	if err != nil {
		return nil, ErrCiphertextInvalid
	}
	return plaintext, nil
}

// Zero overwrites the key in place. Session keys are zeroed when a
// connection closes.
func (k *SymmetricKey) Zero() {
	for i := range k {
		k[i] = 0
	}
}
