// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"time"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/crypto"
)

// Link body types with structural meaning. Every other Body.Type
// value is an action type interpreted by the reducer.
const (
	// TypeRoot marks the first link of a graph. A graph has exactly
	// one root and it has no parents.
	TypeRoot = "ROOT"

	// TypeMerge marks a merge link: two parents, no payload, no
	// author, no signature. Its identity is its parents.
	TypeMerge = "MERGE"
)

// Author identifies who created a link: the user and the specific
// device whose key signed it.
type Author struct {
	UserID   string `cbor:"userId"`
	DeviceID string `cbor:"deviceId"`
}

// Body is the hashed portion of a link. The link hash is the
// link-domain BLAKE3 digest of the body's canonical CBOR encoding,
// so every field here is tamper-evident.
type Body struct {
	// Type is TypeRoot, TypeMerge, or an action type.
	Type string `cbor:"type"`

	// Payload is the action payload, encoded separately so the graph
	// layer never needs to understand reducer types.
	Payload codec.RawMessage `cbor:"payload,omitempty"`

	// Prev holds the parent hashes: none for the root, one for an
	// ordinary action, two (sorted) for a merge.
	Prev []crypto.Hash `cbor:"prev,omitempty"`

	// Timestamp is the author's wall clock in unix milliseconds.
	// Used only as a tiebreaker during branch resolution; no ordering
	// correctness depends on clock accuracy.
	Timestamp int64 `cbor:"timestamp,omitempty"`

	// Author identifies the signing user and device. Zero for merge
	// links.
	Author Author `cbor:"author,omitempty"`
}

// Link is one node of the graph: a body plus the detached signature
// over the body hash. Merge links carry no signature; their identity
// is their parents.
type Link struct {
	Body Body `cbor:"body"`

	// Signature is the authoring device's Ed25519 signature over the
	// link hash.
	Signature crypto.Signature `cbor:"signature,omitempty"`

	// SignedBy is the device signing key the signature verifies
	// under. Recorded in the link so structural validation can run
	// before team state exists; the reducer additionally checks that
	// this key is the one the team has on record for the authoring
	// device.
	SignedBy crypto.SignPublicKey `cbor:"signedBy,omitempty"`

	// hash caches the content hash. Not serialized; recomputed on
	// load so a tampered body can never carry its old hash along.
	hash crypto.Hash
}

// Hash returns the link's content hash, computing and caching it on
// first use.
func (l *Link) Hash() crypto.Hash {
	if l.hash.IsZero() {
		h, err := hashBody(l.Body)
		if err != nil {
			// Body was already marshaled once to build the link; a
			// failure here means memory corruption, not bad input.
			panic("graph: hashing link body: " + err.Error())
		}
		l.hash = h
	}
	return l.hash
}

// IsRoot reports whether the link is the graph root.
func (l *Link) IsRoot() bool { return l.Body.Type == TypeRoot }

// IsMerge reports whether the link is a merge link.
func (l *Link) IsMerge() bool { return l.Body.Type == TypeMerge }

// Timestamp returns the link's timestamp as a time.Time.
func (l *Link) Timestamp() time.Time {
	return time.UnixMilli(l.Body.Timestamp)
}

func hashBody(body Body) (crypto.Hash, error) {
	encoded, err := codec.Marshal(body)
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("encoding link body: %w", err)
	}
	return crypto.Sum(crypto.DomainLink, encoded), nil
}

// Before reports whether l sorts before other by (timestamp, hash),
// the canonical order for concurrent links.
func (l *Link) Before(other *Link) bool {
	if l.Body.Timestamp != other.Body.Timestamp {
		return l.Body.Timestamp < other.Body.Timestamp
	}
	a, b := l.Hash(), other.Hash()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
