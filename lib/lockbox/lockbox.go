// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package lockbox

import (
	"errors"
	"fmt"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/crypto"
	"github.com/quorate/quorate/lib/keyset"
)

var (
	// ErrWrongRecipient is returned when a lockbox is opened with a
	// keyset whose encryption key does not match the recipient the
	// lockbox was sealed to.
	ErrWrongRecipient = errors.New("lockbox was sealed to a different recipient")

	// ErrScopeMismatch is returned when a rotation would change the
	// contents scope, or a seal would put a scope's keys in a lockbox
	// addressed to itself.
	ErrScopeMismatch = errors.New("lockbox scope mismatch")
)

// Lockbox delivers a keyset with secrets to the holder of the
// recipient keyset's encryption secret. The contents scope and
// generation are recorded in the clear so holders can index their
// reachable keys without opening anything.
type Lockbox struct {
	Recipient keyset.PublicKeyset `cbor:"recipient"`

	ContentsScope      keyset.Scope `cbor:"contentsScope"`
	ContentsGeneration uint32       `cbor:"contentsGeneration"`

	// Sealed is the anonymous sealed box of the canonical CBOR
	// encoding of the contents keyset.
	Sealed []byte `cbor:"sealed"`
}

// Seal creates a lockbox delivering contents to recipient. The
// recipient scope must differ from the contents scope: a keyset
// sealed to itself would be openable only by someone who already
// holds it.
func Seal(contents keyset.Keyset, recipient keyset.PublicKeyset) (Lockbox, error) {
	if contents.Scope == recipient.Scope {
		return Lockbox{}, fmt.Errorf("sealing %s to itself: %w", contents.Scope, ErrScopeMismatch)
	}
	plaintext, err := codec.Marshal(contents)
	if err != nil {
		return Lockbox{}, fmt.Errorf("encoding lockbox contents: %w", err)
	}
	sealed, err := crypto.Seal(plaintext, recipient.Encryption)
	if err != nil {
		return Lockbox{}, fmt.Errorf("sealing %s to %s: %w", contents.Scope, recipient.Scope, err)
	}
	return Lockbox{
		Recipient:          recipient,
		ContentsScope:      contents.Scope,
		ContentsGeneration: contents.Generation,
		Sealed:             sealed,
	}, nil
}

// Open decrypts the lockbox with the recipient's keyset. Returns
// ErrWrongRecipient if the keyset's encryption key is not the one the
// lockbox was sealed to, and crypto.ErrCiphertextInvalid if the
// sealed payload fails to authenticate.
func (b Lockbox) Open(recipient keyset.Keyset) (keyset.Keyset, error) {
	pair := recipient.BoxKeypair()
	if pair.Public != b.Recipient.Encryption {
		return keyset.Keyset{}, fmt.Errorf("opening lockbox for %s with %s keys: %w",
			b.Recipient.Scope, recipient.Scope, ErrWrongRecipient)
	}
	plaintext, err := crypto.Open(b.Sealed, pair)
	if err != nil {
		return keyset.Keyset{}, fmt.Errorf("opening lockbox for %s: %w", b.ContentsScope, err)
	}
	var contents keyset.Keyset
	if err := codec.Unmarshal(plaintext, &contents); err != nil {
		return keyset.Keyset{}, fmt.Errorf("decoding lockbox contents: %w", err)
	}
	if contents.Scope != b.ContentsScope || contents.Generation != b.ContentsGeneration {
		return keyset.Keyset{}, fmt.Errorf("lockbox label says %s#%d but contents are %s#%d: %w",
			b.ContentsScope, b.ContentsGeneration, contents.Scope, contents.Generation, ErrScopeMismatch)
	}
	return contents, nil
}

// Rotate reseals a lockbox with successor contents for the same
// recipient. The successor must cover the same scope as the old
// contents; rotation replaces a scope's keys, it never redirects a
// lockbox to a different scope.
func Rotate(old Lockbox, successor keyset.Keyset) (Lockbox, error) {
	if successor.Scope != old.ContentsScope {
		return Lockbox{}, fmt.Errorf("rotating %s lockbox with %s keys: %w",
			old.ContentsScope, successor.Scope, ErrScopeMismatch)
	}
	return Seal(successor, old.Recipient)
}
