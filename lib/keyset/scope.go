// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package keyset

import "fmt"

// ScopeType identifies what kind of principal a keyset belongs to.
type ScopeType string

const (
	// ScopeTeam is the team-wide scope. There is exactly one, named
	// TeamScopeName.
	ScopeTeam ScopeType = "TEAM"

	// ScopeRole scopes keys to a named role. Every member holding the
	// role can reach the role keys through lockboxes.
	ScopeRole ScopeType = "ROLE"

	// ScopeMember scopes keys to a user across all their devices.
	ScopeMember ScopeType = "MEMBER"

	// ScopeDevice scopes keys to a single device. Device secrets are
	// the only secrets stored directly on disk; everything else is
	// reached from them through lockboxes.
	ScopeDevice ScopeType = "DEVICE"

	// ScopeServer scopes keys to a non-voting server member.
	ScopeServer ScopeType = "SERVER"

	// ScopeEphemeral scopes keys to a short-lived identity, such as
	// the starter keys derived from an invitation seed.
	ScopeEphemeral ScopeType = "EPHEMERAL"
)

// TeamScopeName is the fixed name of the single team scope.
const TeamScopeName = "TEAM"

// AdminRoleName is the built-in admin role. It always exists and can
// never be removed.
const AdminRoleName = "ADMIN"

// EphemeralScopeName is the fixed name of ephemeral scopes.
const EphemeralScopeName = "EPHEMERAL"

// Scope is the subject a keyset belongs to.
type Scope struct {
	Type ScopeType `cbor:"type"`
	Name string    `cbor:"name"`
}

// TeamScope returns the team scope.
func TeamScope() Scope {
	return Scope{Type: ScopeTeam, Name: TeamScopeName}
}

// RoleScope returns the scope for a named role.
func RoleScope(roleName string) Scope {
	return Scope{Type: ScopeRole, Name: roleName}
}

// AdminScope returns the scope of the built-in admin role.
func AdminScope() Scope {
	return RoleScope(AdminRoleName)
}

// MemberScope returns the scope for a user.
func MemberScope(userID string) Scope {
	return Scope{Type: ScopeMember, Name: userID}
}

// DeviceScope returns the scope for a device.
func DeviceScope(deviceID string) Scope {
	return Scope{Type: ScopeDevice, Name: deviceID}
}

// ServerScope returns the scope for a server member.
func ServerScope(host string) Scope {
	return Scope{Type: ScopeServer, Name: host}
}

// EphemeralScope returns the scope for short-lived derived keys.
func EphemeralScope() Scope {
	return Scope{Type: ScopeEphemeral, Name: EphemeralScopeName}
}

// String renders the scope as TYPE/name, the form used in logs and
// AEAD associated data.
func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.Type, s.Name)
}

// IsZero reports whether the scope is unset.
func (s Scope) IsZero() bool {
	return s.Type == "" && s.Name == ""
}
