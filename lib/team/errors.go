// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import "errors"

var (
	// ErrNotAdmin means the link's author lacked admin authority for
	// an admin-only action.
	ErrNotAdmin = errors.New("author is not an admin")

	// ErrUnknownAuthor means the link's author is not a member of the
	// team, or the signing key does not match the author's recorded
	// device key.
	ErrUnknownAuthor = errors.New("author unknown to the team")

	// ErrCannotRemoveOnlyAdmin guards the invariant that a team
	// always has at least one admin.
	ErrCannotRemoveOnlyAdmin = errors.New("cannot remove the only admin")

	// ErrCannotRemoveAdminRole guards the built-in ADMIN role, which
	// always exists.
	ErrCannotRemoveAdminRole = errors.New("cannot remove the ADMIN role")

	// ErrCannotRemoveLastDevice guards the invariant that every
	// active member has at least one device.
	ErrCannotRemoveLastDevice = errors.New("cannot remove a member's last device")

	// ErrUnknownMember means an action targets a user the team does
	// not know.
	ErrUnknownMember = errors.New("no such member")

	// ErrUnknownDevice means an action targets a device the team
	// does not know.
	ErrUnknownDevice = errors.New("no such device")

	// ErrUnknownRole means an action references a role the team does
	// not know.
	ErrUnknownRole = errors.New("no such role")

	// ErrKeyRotation means a key change does not increase the scope's
	// generation, which must be monotone.
	ErrKeyRotation = errors.New("key change does not advance generation")

	// ErrNoKeys means the local context cannot reach the keys needed
	// for an operation through the lockbox graph.
	ErrNoKeys = errors.New("keys not reachable from local device")

	// ErrMalformedLink means a link's payload failed to decode as its
	// declared action type.
	ErrMalformedLink = errors.New("malformed action payload")
)
