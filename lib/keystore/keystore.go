// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore exports and imports a device's credentials sealed
// with a passphrase, for moving an identity to a new machine. The
// sealed form is an age ciphertext with a scrypt recipient, so the
// passphrase is the only secret the user carries.
package keystore

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/keyset"
	"github.com/quorate/quorate/lib/team"
)

// ErrPassphraseInvalid is returned by Import when the passphrase does
// not open the bundle.
var ErrPassphraseInvalid = errors.New("passphrase invalid")

// ErrBundleInvalid is returned by Import when the decrypted payload is
// not a credential bundle this version understands.
var ErrBundleInvalid = errors.New("credential bundle invalid")

const bundleVersion = 1

// scryptWorkFactor is the log2 scrypt cost for new exports. Lowered in
// tests.
var scryptWorkFactor = 18

// bundle is the sealed payload: everything a device needs to act as
// its user again. Keysets travel as seeds, so the bundle stays small.
type bundle struct {
	Version    int           `cbor:"version"`
	UserID     string        `cbor:"userId"`
	DeviceID   string        `cbor:"deviceId"`
	UserKeys   keyset.Keyset `cbor:"userKeys"`
	DeviceKeys keyset.Keyset `cbor:"deviceKeys"`
}

// Export seals the identity's keysets under the passphrase.
func Export(ctx team.Context, passphrase string) ([]byte, error) {
	plaintext, err := codec.Marshal(bundle{
		Version:    bundleVersion,
		UserID:     ctx.UserID,
		DeviceID:   ctx.DeviceID,
		UserKeys:   ctx.UserKeys,
		DeviceKeys: ctx.DeviceKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding bundle: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("preparing passphrase recipient: %w", err)
	}
	recipient.SetWorkFactor(scryptWorkFactor)

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing bundle: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return sealed.Bytes(), nil
}

// Import opens a sealed bundle and reconstructs the identity.
func Import(data []byte, passphrase string) (team.Context, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return team.Context{}, fmt.Errorf("preparing passphrase identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return team.Context{}, fmt.Errorf("%w: %v", ErrPassphraseInvalid, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return team.Context{}, fmt.Errorf("%w: %v", ErrPassphraseInvalid, err)
	}

	var b bundle
	if err := codec.Unmarshal(plaintext, &b); err != nil {
		return team.Context{}, fmt.Errorf("decoding bundle: %w", err)
	}
	if b.Version != bundleVersion {
		return team.Context{}, fmt.Errorf("bundle version %d: %w", b.Version, ErrBundleInvalid)
	}
	if b.UserID == "" || b.DeviceID == "" || b.UserKeys.IsZero() || b.DeviceKeys.IsZero() {
		return team.Context{}, ErrBundleInvalid
	}
	return team.Context{
		UserID:     b.UserID,
		DeviceID:   b.DeviceID,
		UserKeys:   b.UserKeys,
		DeviceKeys: b.DeviceKeys,
	}, nil
}
