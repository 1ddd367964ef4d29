// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package invitation

import (
	"errors"
	"fmt"
	"time"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/crypto"
	"github.com/quorate/quorate/lib/keyset"
)

var (
	// ErrNotFound is returned when no invitation with the claimed id
	// exists on the team.
	ErrNotFound = errors.New("invitation not found")

	// ErrRevoked is returned when the invitation was revoked before
	// the proof was presented.
	ErrRevoked = errors.New("invitation revoked")

	// ErrExhausted is returned when the invitation has no remaining
	// uses.
	ErrExhausted = errors.New("invitation exhausted")

	// ErrExpired is returned when the invitation's expiration has
	// passed.
	ErrExpired = errors.New("invitation expired")

	// ErrProofInvalid is returned when the proof's signature does not
	// verify under the invitation's derived public key.
	ErrProofInvalid = errors.New("invitation proof invalid")
)

// Invitation is the public record the inviter posts on the graph.
// Everything here is derived from the seed or chosen by the inviter;
// nothing reveals the seed.
type Invitation struct {
	// ID identifies the invitation: the hex form of the id-domain
	// hash of the seed.
	ID string `cbor:"id"`

	// PublicKey is the ephemeral Ed25519 public key derived from the
	// seed. Proofs of invitation verify against it.
	PublicKey crypto.SignPublicKey `cbor:"publicKey"`

	// Expiration is the unix-millisecond deadline for presenting the
	// proof. Zero means no expiration.
	Expiration int64 `cbor:"expiration,omitempty"`

	// MaxUses caps how many admissions the invitation allows. The
	// usual value is 1.
	MaxUses int `cbor:"maxUses"`

	// UserID optionally binds the invitation to a specific user name,
	// used when a member invites one of their own future devices.
	UserID string `cbor:"userId,omitempty"`
}

// Proof is the invitee's signed claim of seed possession: the
// invitation id and the invitee's chosen user name, signed with the
// seed-derived secret key.
type Proof struct {
	ID        string           `cbor:"id"`
	UserName  string           `cbor:"userName"`
	Signature crypto.Signature `cbor:"signature"`
}

// DeriveID computes the invitation id for a seed.
func DeriveID(seed Seed) string {
	return crypto.Sum(crypto.DomainInvitationID, []byte(seed)).String()
}

// deriveKeypair expands the seed into the ephemeral signing keypair.
func deriveKeypair(seed Seed) crypto.SignKeypair {
	material := crypto.DeriveKey(crypto.DomainInvitationKeys, []byte(seed))
	return crypto.SignKeypairFromSeed(material)
}

// StarterKeys derives the invitee's provisional member keyset from
// the seed. The invitee signs their first links with these until
// their CHANGE_MEMBER_KEYS lands with keys only they hold.
func StarterKeys(seed Seed, userID string) keyset.Keyset {
	return keyset.FromSeed(keyset.MemberScope(userID), []byte(seed))
}

// New creates the public invitation record for a seed. maxUses values
// below one are treated as one. expiration of zero means the
// invitation never expires.
func New(seed Seed, maxUses int, expiration time.Time, userID string) Invitation {
	if maxUses < 1 {
		maxUses = 1
	}
	var deadline int64
	if !expiration.IsZero() {
		deadline = expiration.UnixMilli()
	}
	return Invitation{
		ID:         DeriveID(seed),
		PublicKey:  deriveKeypair(seed).Public,
		Expiration: deadline,
		MaxUses:    maxUses,
		UserID:     userID,
	}
}

// GenerateProof signs the (id, userName) claim with the seed-derived
// secret key.
func GenerateProof(seed Seed, userName string) (Proof, error) {
	claim, err := proofClaim(DeriveID(seed), userName)
	if err != nil {
		return Proof{}, err
	}
	return Proof{
		ID:        DeriveID(seed),
		UserName:  userName,
		Signature: deriveKeypair(seed).Sign(claim),
	}, nil
}

// Validate checks a proof against the invitation record: matching id,
// unexpired, and a signature that verifies under the seed-derived
// public key. Revocation and use counting are team-state concerns and
// are checked by the reducer, not here.
func (inv Invitation) Validate(proof Proof, now time.Time) error {
	if proof.ID != inv.ID {
		return fmt.Errorf("proof is for invitation %s: %w", proof.ID, ErrNotFound)
	}
	if inv.Expiration != 0 && now.UnixMilli() > inv.Expiration {
		return fmt.Errorf("invitation %s expired at %d: %w", inv.ID, inv.Expiration, ErrExpired)
	}
	claim, err := proofClaim(proof.ID, proof.UserName)
	if err != nil {
		return err
	}
	if !inv.PublicKey.Verify(claim, proof.Signature) {
		return fmt.Errorf("invitation %s: %w", inv.ID, ErrProofInvalid)
	}
	return nil
}

// proofClaim is the canonical byte string a proof signs.
func proofClaim(id, userName string) ([]byte, error) {
	claim, err := codec.Marshal(struct {
		ID       string `cbor:"id"`
		UserName string `cbor:"userName"`
	}{ID: id, UserName: userName})
	if err != nil {
		return nil, fmt.Errorf("encoding proof claim: %w", err)
	}
	return claim, nil
}
