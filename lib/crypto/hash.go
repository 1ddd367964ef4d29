// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the size in bytes of every digest in the system.
const HashSize = 32

// Hash is a 32-byte BLAKE3 digest. Link hashes, invitation ids, and
// derived symmetric keys are all this size.
type Hash [HashSize]byte

// Domain names for keyed hashing. Fixed constants — changing any of
// these invalidates every existing graph, invitation, and session.
const (
	// DomainLink hashes canonical CBOR link bodies into link ids.
	DomainLink = "quorate.graph.link.v1"

	// DomainInvitationID derives an invitation id from its seed.
	DomainInvitationID = "quorate.invitation.id.v1"

	// DomainInvitationKeys derives the invitation's ephemeral signing
	// key material from its seed.
	DomainInvitationKeys = "quorate.invitation.keys.v1"

	// DomainKeysetSeed derives per-keypair seeds from a keyset seed.
	DomainKeysetSeed = "quorate.keyset.seed.v1"

	// DomainSymmetric derives a keyset's symmetric key from its
	// encryption secret.
	DomainSymmetric = "quorate.keyset.symmetric.v1"

	// DomainSession derives a connection session key from the two
	// peers' seeds.
	DomainSession = "quorate.connection.session.v1"
)

// domainKey expands a domain name into a 32-byte BLAKE3 key: the
// ASCII bytes of the name, zero-padded. Readable in hex dumps without
// sacrificing any cryptographic property (keyed BLAKE3 treats the key
// as an opaque 32-byte value). Domain names longer than 32 bytes are
// a programming error.
func domainKey(domain string) [HashSize]byte {
	if len(domain) > HashSize {
		panic(fmt.Sprintf("crypto: domain %q exceeds %d bytes", domain, HashSize))
	}
	var key [HashSize]byte
	copy(key[:], domain)
	return key
}

// Sum computes the keyed BLAKE3 digest of the concatenation of data
// under the given domain.
func Sum(domain string, data ...[]byte) Hash {
	key := domainKey(domain)
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("crypto: BLAKE3 keyed hasher: " + err.Error())
	}
	for _, d := range data {
		hasher.Write(d)
	}
	var digest Hash
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// DeriveKey derives a 32-byte key from secret material under the
// given domain. Same mechanism as Sum; the separate name marks call
// sites where the output is a key rather than an identifier.
func DeriveKey(domain string, material ...[]byte) Hash {
	return Sum(domain, material...)
}

// String returns the lowercase hex encoding of the hash. This is the
// canonical textual form used in logs and the CLI.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is the all-zero value, which is
// never a valid digest of anything.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash parses a 64-character lowercase hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("parsing hash %q: %w", s, err)
	}
	if len(decoded) != HashSize {
		return Hash{}, fmt.Errorf("parsing hash: got %d bytes, want %d", len(decoded), HashSize)
	}
	copy(h[:], decoded)
	return h, nil
}
