// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"fmt"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/crypto"
	"github.com/quorate/quorate/lib/graph"
	"github.com/quorate/quorate/lib/identity"
	"github.com/quorate/quorate/lib/invitation"
	"github.com/quorate/quorate/lib/keyset"
	"github.com/quorate/quorate/lib/team"
)

// Wire message types.
const (
	MessageHello             = "HELLO"
	MessageAcceptInvitation  = "ACCEPT_INVITATION"
	MessageChallengeIdentity = "CHALLENGE_IDENTITY"
	MessageProveIdentity     = "PROVE_IDENTITY"
	MessageAcceptIdentity    = "ACCEPT_IDENTITY"
	MessageUpdate            = "UPDATE"
	MessageMissingLinks      = "MISSING_LINKS"
	MessageSeed              = "SEED"
	MessageLocalUpdate       = "LOCAL_UPDATE"
	MessageDisconnect        = "DISCONNECT"
	MessageError             = "ERROR"
)

// Message is the wire envelope. Index increases by one per message
// per sender; receivers buffer out-of-order arrivals and deliver in
// sequence.
type Message struct {
	Type     string           `cbor:"type"`
	SenderID string           `cbor:"senderId"`
	TargetID string           `cbor:"targetId,omitempty"`
	Index    uint64           `cbor:"index"`
	Payload  codec.RawMessage `cbor:"payload,omitempty"`
}

// HelloPayload opens the protocol: the sender's identity claim and,
// when the sender is an invitee, their proof of invitation plus the
// starter member keyset and device record the admitting peer should
// put on the graph.
type HelloPayload struct {
	Claim      identity.Claim       `cbor:"claim"`
	Proof      *invitation.Proof    `cbor:"proof,omitempty"`
	MemberKeys *keyset.PublicKeyset `cbor:"memberKeys,omitempty"`
	Device     *team.Device         `cbor:"device,omitempty"`
}

// AcceptInvitationPayload carries the serialized team graph to a
// just-admitted invitee.
type AcceptInvitationPayload struct {
	Graph []byte `cbor:"graph"`
}

// ChallengeIdentityPayload asks the peer to prove their claimed
// identity.
type ChallengeIdentityPayload struct {
	Challenge identity.Challenge `cbor:"challenge"`
}

// ProveIdentityPayload answers a challenge with the device signature.
type ProveIdentityPayload struct {
	Proof crypto.Signature `cbor:"proof"`
}

// AcceptIdentityPayload accepts a verified identity and carries the
// sender's half of the session-key seed, sealed to the peer device's
// encryption key.
type AcceptIdentityPayload struct {
	SealedSeed []byte `cbor:"sealedSeed"`
}

// UpdatePayload announces the sender's current graph position.
type UpdatePayload struct {
	Root   crypto.Hash   `cbor:"root"`
	Head   crypto.Hash   `cbor:"head"`
	Hashes []crypto.Hash `cbor:"hashes"`
}

// MissingLinksPayload delivers links the peer reported not having,
// together with the sender's head at the time.
type MissingLinksPayload struct {
	Head  crypto.Hash   `cbor:"head"`
	Links []*graph.Link `cbor:"links"`
}

// SeedPayload carries a sealed session-key seed outside the identity
// acceptance flow: the admitting member sends it to an invitee, whose
// admission proof replaced the identity challenge.
type SeedPayload struct {
	SealedSeed []byte `cbor:"sealedSeed"`
}

// DisconnectPayload announces an orderly shutdown.
type DisconnectPayload struct {
	Reason string `cbor:"reason,omitempty"`
}

// ErrorPayload reports a protocol failure to the peer before the
// sender gives up.
type ErrorPayload struct {
	Code    string `cbor:"code"`
	Message string `cbor:"message,omitempty"`
}

func encodePayload(payload any) (codec.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return codec.RawMessage(encoded), nil
}

func decodeInto[T any](m Message) (*T, error) {
	var payload T
	if err := codec.Unmarshal(m.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", m.Type, err)
	}
	return &payload, nil
}
