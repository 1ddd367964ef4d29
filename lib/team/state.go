// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"sort"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/invitation"
	"github.com/quorate/quorate/lib/keyset"
	"github.com/quorate/quorate/lib/lockbox"
)

// InvitationState is the team's record of an invitation: the public
// record from the INVITE link plus its consumption state.
type InvitationState struct {
	invitation.Invitation

	RemainingUses int
	Revoked       bool
	Used          bool

	// Admitted lists the user names admitted under this invitation,
	// in sequence order.
	Admitted []string
}

// State is the materialized view derived by replaying the graph. It
// is owned by the reducer: callers read it and never mutate it, and
// each applied link produces a fresh value.
type State struct {
	TeamName string

	// Members is ordered by first appearance on the graph. That
	// order is the seniority order the strong-remove resolver uses.
	Members []*Member

	Roles   []Role
	Servers []*Server

	RemovedMembers []*Member
	RemovedDevices []*Device

	// Invitations is keyed by invitation id.
	Invitations map[string]*InvitationState

	// Lockboxes is the full lockbox graph for the team: every
	// generation ever posted. Old generations stay so that payloads
	// encrypted under them remain decryptable.
	Lockboxes []lockbox.Lockbox

	// Messages is the opaque team message log.
	Messages []codec.RawMessage
}

func newState() *State {
	return &State{
		Roles:       []Role{{Name: keyset.AdminRoleName}},
		Invitations: map[string]*InvitationState{},
	}
}

// clone deep-copies the state so an applied link never mutates a
// value a caller may be holding.
func (s *State) clone() *State {
	out := &State{
		TeamName:       s.TeamName,
		Roles:          append([]Role(nil), s.Roles...),
		Lockboxes:      append([]lockbox.Lockbox(nil), s.Lockboxes...),
		Messages:       append([]codec.RawMessage(nil), s.Messages...),
		Invitations:    make(map[string]*InvitationState, len(s.Invitations)),
		Members:        make([]*Member, len(s.Members)),
		Servers:        make([]*Server, len(s.Servers)),
		RemovedMembers: make([]*Member, len(s.RemovedMembers)),
		RemovedDevices: make([]*Device, len(s.RemovedDevices)),
	}
	for i, m := range s.Members {
		out.Members[i] = m.clone()
	}
	for i, m := range s.RemovedMembers {
		out.RemovedMembers[i] = m.clone()
	}
	for i, d := range s.RemovedDevices {
		copied := *d
		out.RemovedDevices[i] = &copied
	}
	for i, srv := range s.Servers {
		copied := *srv
		out.Servers[i] = &copied
	}
	for id, inv := range s.Invitations {
		copied := *inv
		copied.Admitted = append([]string(nil), inv.Admitted...)
		out.Invitations[id] = &copied
	}
	return out
}

func (m *Member) clone() *Member {
	copied := *m
	copied.Roles = append([]string(nil), m.Roles...)
	copied.Devices = append([]Device(nil), m.Devices...)
	return &copied
}

// Member returns the active member with the given user id.
func (s *State) Member(userID string) (*Member, bool) {
	for _, m := range s.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return nil, false
}

// Device returns the active device with the given id, searching all
// members.
func (s *State) Device(deviceID string) (*Device, bool) {
	for _, m := range s.Members {
		for i := range m.Devices {
			if m.Devices[i].DeviceID == deviceID {
				return &m.Devices[i], true
			}
		}
	}
	return nil, false
}

// Server returns the server member with the given host.
func (s *State) Server(host string) (*Server, bool) {
	for _, srv := range s.Servers {
		if srv.Host == host {
			return srv, true
		}
	}
	return nil, false
}

// HasRole reports whether the named role exists.
func (s *State) HasRole(roleName string) bool {
	for _, r := range s.Roles {
		if r.Name == roleName {
			return true
		}
	}
	return false
}

// MemberHasRole reports whether the member holds the role.
func (s *State) MemberHasRole(userID, roleName string) bool {
	m, ok := s.Member(userID)
	if !ok {
		return false
	}
	for _, r := range m.Roles {
		if r == roleName {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user is an active member holding the
// ADMIN role.
func (s *State) IsAdmin(userID string) bool {
	return s.MemberHasRole(userID, keyset.AdminRoleName)
}

// Admins returns the active admins in seniority order.
func (s *State) Admins() []*Member {
	var admins []*Member
	for _, m := range s.Members {
		if s.MemberHasRole(m.UserID, keyset.AdminRoleName) {
			admins = append(admins, m)
		}
	}
	return admins
}

// MembersWithRole returns the active members holding the role, in
// seniority order.
func (s *State) MembersWithRole(roleName string) []*Member {
	var holders []*Member
	for _, m := range s.Members {
		if s.MemberHasRole(m.UserID, roleName) {
			holders = append(holders, m)
		}
	}
	return holders
}

// WasRemoved reports whether the user was ever removed from the team.
func (s *State) WasRemoved(userID string) bool {
	for _, m := range s.RemovedMembers {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// ScopeGeneration returns the highest generation any lockbox delivers
// for the scope, which is the scope's current generation. Returns
// false if no lockbox covers the scope.
func (s *State) ScopeGeneration(scope keyset.Scope) (uint32, bool) {
	var best uint32
	found := false
	for _, b := range s.Lockboxes {
		if b.ContentsScope != scope {
			continue
		}
		if !found || b.ContentsGeneration > best {
			best = b.ContentsGeneration
			found = true
		}
	}
	return best, found
}

// InvitationIDs returns the ids of all recorded invitations, sorted.
func (s *State) InvitationIDs() []string {
	ids := make([]string, 0, len(s.Invitations))
	for id := range s.Invitations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// removeLockboxesFor drops lockboxes addressed to any of the given
// scopes. Used when a principal leaves: its delivery edges go with
// it.
func (s *State) removeLockboxesFor(scopes ...keyset.Scope) {
	addressed := func(b lockbox.Lockbox) bool {
		for _, scope := range scopes {
			if b.Recipient.Scope == scope {
				return true
			}
		}
		return false
	}
	kept := s.Lockboxes[:0]
	for _, b := range s.Lockboxes {
		if !addressed(b) {
			kept = append(kept, b)
		}
	}
	s.Lockboxes = kept
}
