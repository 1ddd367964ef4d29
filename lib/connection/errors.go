// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import "errors"

var (
	// ErrTimeout means a protocol phase did not complete within its
	// deadline.
	ErrTimeout = errors.New("connection timed out")

	// ErrNeitherIsMember means both peers presented invitations, so
	// neither can vouch for the team.
	ErrNeitherIsMember = errors.New("neither peer is a member")

	// ErrIdentityRejected means the peer's claimed identity is not a
	// member of the team, or their proof did not verify.
	ErrIdentityRejected = errors.New("peer identity rejected")

	// ErrInvitationRejected means the peer's proof of invitation did
	// not validate against the team's invitation records.
	ErrInvitationRejected = errors.New("peer invitation rejected")

	// ErrWrongTeam means the graph received with an invitation
	// acceptance does not contain our invitation.
	ErrWrongTeam = errors.New("received graph is for a different team")

	// ErrPeerRemoved means the peer is no longer a member after the
	// latest merge.
	ErrPeerRemoved = errors.New("peer was removed from the team")

	// ErrSelfRemoved means we are no longer a member after the latest
	// merge.
	ErrSelfRemoved = errors.New("local member was removed from the team")

	// ErrUnexpectedMessage means a message type arrived that the
	// current state cannot accept.
	ErrUnexpectedMessage = errors.New("unexpected message for connection state")

	// ErrCancelled means the connection was stopped locally before
	// completing.
	ErrCancelled = errors.New("connection cancelled")

	// ErrRemote wraps an ERROR message received from the peer.
	ErrRemote = errors.New("remote error")
)
