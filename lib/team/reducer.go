// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/quorate/quorate/lib/graph"
	"github.com/quorate/quorate/lib/invitation"
	"github.com/quorate/quorate/lib/keyset"
)

// Reduce folds a linearized sequence of links into a team state. The
// first link must be the root. Links that fail to decode, fail
// authorization, or would violate an invariant are logged and
// skipped; reduction always completes.
func Reduce(links []*graph.Link, logger *slog.Logger) (*State, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(links) == 0 || !links[0].IsRoot() {
		return nil, fmt.Errorf("sequence does not start at a root link: %w", ErrMalformedLink)
	}

	payload, err := decodePayload(links[0])
	if err != nil {
		return nil, fmt.Errorf("decoding root: %w", err)
	}
	root, ok := payload.(*RootPayload)
	if !ok {
		return nil, fmt.Errorf("root link payload: %w", ErrMalformedLink)
	}

	state := newState()
	state.applyRoot(root)

	for _, link := range links[1:] {
		if err := state.applyLink(link); err != nil {
			logger.Warn("dropping link",
				"hash", link.Hash().String(),
				"type", link.Body.Type,
				"author", link.Body.Author.UserID,
				"error", err)
		}
	}
	return state, nil
}

// Apply returns the state after one more link, leaving the receiver
// untouched. Used by the facade for local appends, which extend the
// sequence linearly.
func (s *State) Apply(link *graph.Link, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	next := s.clone()
	if err := next.applyLink(link); err != nil {
		logger.Warn("dropping link",
			"hash", link.Hash().String(),
			"type", link.Body.Type,
			"author", link.Body.Author.UserID,
			"error", err)
	}
	return next
}

func (s *State) applyRoot(root *RootPayload) {
	s.TeamName = root.TeamName
	founder := root.Founder.clone()
	if !hasString(founder.Roles, keyset.AdminRoleName) {
		founder.Roles = append(founder.Roles, keyset.AdminRoleName)
	}
	s.Members = append(s.Members, founder)
	s.Lockboxes = append(s.Lockboxes, root.Lockboxes...)
}

// applyLink mutates s (a private working copy) with one link's
// effect, or returns an error describing why the link was dropped.
func (s *State) applyLink(link *graph.Link) error {
	payload, err := decodePayload(link)
	if err != nil {
		return err
	}
	if err := s.authorize(link, payload); err != nil {
		return err
	}

	switch p := payload.(type) {
	case *AddMemberPayload:
		return s.applyAddMember(p)
	case *RemoveMemberPayload:
		return s.applyRemoveMember(p)
	case *AddRolePayload:
		return s.applyAddRole(p)
	case *RemoveRolePayload:
		return s.applyRemoveRole(p)
	case *MemberRolePayload:
		if link.Body.Type == ActionAddMemberRole {
			return s.applyAddMemberRole(p)
		}
		return s.applyRemoveMemberRole(p)
	case *AddDevicePayload:
		return s.applyAddDevice(p)
	case *RemoveDevicePayload:
		return s.applyRemoveDevice(p)
	case *ChangeKeysPayload:
		return s.applyChangeKeys(p)
	case *InvitePayload:
		return s.applyInvite(p)
	case *RevokeInvitationPayload:
		return s.applyRevokeInvitation(p)
	case *AdmitPayload:
		return s.applyAdmit(p, link.Timestamp())
	case *AddServerPayload:
		return s.applyAddServer(p)
	case *RemoveServerPayload:
		return s.applyRemoveServer(p)
	case *SetTeamNamePayload:
		s.TeamName = p.TeamName
		return nil
	case *AddMessagePayload:
		s.Messages = append(s.Messages, p.Message)
		return nil
	case *RootPayload:
		return fmt.Errorf("second root: %w", ErrMalformedLink)
	default:
		return fmt.Errorf("action type %q: %w", link.Body.Type, ErrMalformedLink)
	}
}

// adminOnly lists the actions that require the ADMIN role. Everything
// else is available to any member acting on their own scope.
var adminOnly = map[string]bool{
	ActionAddMember:        true,
	ActionRemoveMember:     true,
	ActionAddRole:          true,
	ActionRemoveRole:       true,
	ActionAddMemberRole:    true,
	ActionRemoveMemberRole: true,
	ActionInvite:           true,
	ActionRevokeInvitation: true,
	ActionAddServer:        true,
	ActionRemoveServer:     true,
	ActionChangeServerKeys: true,
	ActionSetTeamName:      true,
}

func (s *State) authorize(link *graph.Link, payload any) error {
	author := link.Body.Author

	// Self-admission: the invitee posts their own ADMIT after
	// adopting the graph. They are not a member yet; the invitation
	// proof is their authority, and the link must be signed by the
	// device they are introducing.
	if admit, ok := payload.(*AdmitPayload); ok && admit.Member.UserID == author.UserID {
		if _, alreadyMember := s.Member(author.UserID); !alreadyMember {
			if deviceKeyMatches(admit.Member.Devices, author.DeviceID, link) {
				return nil
			}
			return fmt.Errorf("self-admission of %s signed by unknown device: %w", author.UserID, ErrUnknownAuthor)
		}
	}

	member, ok := s.Member(author.UserID)
	if !ok {
		return fmt.Errorf("author %s: %w", author.UserID, ErrUnknownAuthor)
	}

	// The signing key must be the one on record for the author's
	// device — or, for a self-introduction of a new device, the key
	// inside the payload itself.
	if device, ok := s.Device(author.DeviceID); ok {
		hash := link.Hash()
		if device.UserID != author.UserID || !device.Keys.Signature.Verify(hash[:], link.Signature) {
			return fmt.Errorf("link signed with a key the team does not have on record for %s/%s: %w",
				author.UserID, author.DeviceID, ErrUnknownAuthor)
		}
	} else if add, isAdd := payload.(*AddDevicePayload); isAdd &&
		add.Device.UserID == author.UserID && add.Device.DeviceID == author.DeviceID {
		if !deviceKeyMatches([]Device{add.Device}, author.DeviceID, link) {
			return fmt.Errorf("device introduction for %s not signed by the introduced key: %w",
				author.DeviceID, ErrUnknownAuthor)
		}
	} else {
		return fmt.Errorf("author device %s: %w", author.DeviceID, ErrUnknownDevice)
	}

	if adminOnly[link.Body.Type] && !s.IsAdmin(member.UserID) {
		return fmt.Errorf("%s by %s: %w", link.Body.Type, member.UserID, ErrNotAdmin)
	}

	// Own-scope restrictions for the non-admin mutations.
	switch p := payload.(type) {
	case *AddDevicePayload:
		if p.Device.UserID != author.UserID && !s.IsAdmin(author.UserID) {
			return fmt.Errorf("adding a device for %s: %w", p.Device.UserID, ErrNotAdmin)
		}
	case *RemoveDevicePayload:
		if p.UserID != author.UserID && !s.IsAdmin(author.UserID) {
			return fmt.Errorf("removing a device of %s: %w", p.UserID, ErrNotAdmin)
		}
	case *ChangeKeysPayload:
		if err := s.authorizeChangeKeys(link, p, author); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) authorizeChangeKeys(link *graph.Link, p *ChangeKeysPayload, author graph.Author) error {
	switch link.Body.Type {
	case ActionChangeMemberKeys:
		if p.Keys.Scope != keyset.MemberScope(author.UserID) {
			return fmt.Errorf("%s changing keys for %s: %w", author.UserID, p.Keys.Scope, ErrNotAdmin)
		}
	case ActionChangeDeviceKeys:
		device, ok := s.Device(p.Keys.Scope.Name)
		if !ok {
			return fmt.Errorf("key change for %s: %w", p.Keys.Scope, ErrUnknownDevice)
		}
		if device.UserID != author.UserID && !s.IsAdmin(author.UserID) {
			return fmt.Errorf("%s changing keys of %s's device: %w", author.UserID, device.UserID, ErrNotAdmin)
		}
	case ActionChangeServerKeys:
		// Covered by adminOnly.
	}
	return nil
}

func deviceKeyMatches(devices []Device, deviceID string, link *graph.Link) bool {
	hash := link.Hash()
	for _, d := range devices {
		if d.DeviceID == deviceID && d.Keys.Signature.Verify(hash[:], link.Signature) {
			return true
		}
	}
	return false
}

func (s *State) applyAddMember(p *AddMemberPayload) error {
	if _, exists := s.Member(p.Member.UserID); exists {
		return nil // concurrent duplicate, idempotent
	}
	member := p.Member.clone()
	for _, role := range p.Roles {
		if !hasString(member.Roles, role) {
			member.Roles = append(member.Roles, role)
		}
	}
	for _, role := range member.Roles {
		if !s.HasRole(role) {
			return fmt.Errorf("granting %s: %w", role, ErrUnknownRole)
		}
	}
	s.Members = append(s.Members, member)
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func (s *State) applyRemoveMember(p *RemoveMemberPayload) error {
	member, ok := s.Member(p.UserID)
	if !ok {
		if s.WasRemoved(p.UserID) {
			return nil // concurrent duplicate, idempotent
		}
		return fmt.Errorf("removing %s: %w", p.UserID, ErrUnknownMember)
	}
	if s.IsAdmin(p.UserID) && len(s.Admins()) == 1 {
		return fmt.Errorf("removing %s: %w", p.UserID, ErrCannotRemoveOnlyAdmin)
	}

	kept := s.Members[:0]
	for _, m := range s.Members {
		if m.UserID != p.UserID {
			kept = append(kept, m)
		}
	}
	s.Members = kept
	s.RemovedMembers = append(s.RemovedMembers, member)

	scopes := []keyset.Scope{keyset.MemberScope(p.UserID)}
	for _, d := range member.Devices {
		scopes = append(scopes, keyset.DeviceScope(d.DeviceID))
	}
	s.removeLockboxesFor(scopes...)
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func (s *State) applyAddRole(p *AddRolePayload) error {
	if s.HasRole(p.Role.Name) {
		return nil
	}
	s.Roles = append(s.Roles, p.Role)
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func (s *State) applyRemoveRole(p *RemoveRolePayload) error {
	if p.RoleName == keyset.AdminRoleName {
		return fmt.Errorf("removing %s: %w", p.RoleName, ErrCannotRemoveAdminRole)
	}
	if !s.HasRole(p.RoleName) {
		return nil
	}
	kept := s.Roles[:0]
	for _, r := range s.Roles {
		if r.Name != p.RoleName {
			kept = append(kept, r)
		}
	}
	s.Roles = kept
	for _, m := range s.Members {
		m.Roles = removeString(m.Roles, p.RoleName)
	}
	s.removeLockboxesFor(keyset.RoleScope(p.RoleName))
	return nil
}

func (s *State) applyAddMemberRole(p *MemberRolePayload) error {
	member, ok := s.Member(p.UserID)
	if !ok {
		return fmt.Errorf("granting %s to %s: %w", p.RoleName, p.UserID, ErrUnknownMember)
	}
	if !s.HasRole(p.RoleName) {
		return fmt.Errorf("granting %s: %w", p.RoleName, ErrUnknownRole)
	}
	if hasString(member.Roles, p.RoleName) {
		return nil
	}
	member.Roles = append(member.Roles, p.RoleName)
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func (s *State) applyRemoveMemberRole(p *MemberRolePayload) error {
	member, ok := s.Member(p.UserID)
	if !ok {
		return fmt.Errorf("revoking %s from %s: %w", p.RoleName, p.UserID, ErrUnknownMember)
	}
	if !hasString(member.Roles, p.RoleName) {
		return nil // concurrent duplicate, idempotent
	}
	if p.RoleName == keyset.AdminRoleName && len(s.Admins()) == 1 {
		return fmt.Errorf("demoting %s: %w", p.UserID, ErrCannotRemoveOnlyAdmin)
	}
	member.Roles = removeString(member.Roles, p.RoleName)
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func (s *State) applyAddDevice(p *AddDevicePayload) error {
	member, ok := s.Member(p.Device.UserID)
	if !ok {
		return fmt.Errorf("adding device for %s: %w", p.Device.UserID, ErrUnknownMember)
	}
	if _, exists := s.Device(p.Device.DeviceID); exists {
		return nil
	}
	member.Devices = append(member.Devices, p.Device)
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func (s *State) applyRemoveDevice(p *RemoveDevicePayload) error {
	member, ok := s.Member(p.UserID)
	if !ok {
		return fmt.Errorf("removing device of %s: %w", p.UserID, ErrUnknownMember)
	}
	index := -1
	for i := range member.Devices {
		if member.Devices[i].DeviceID == p.DeviceID {
			index = i
			break
		}
	}
	if index < 0 {
		for _, d := range s.RemovedDevices {
			if d.DeviceID == p.DeviceID {
				return nil // concurrent duplicate, idempotent
			}
		}
		return fmt.Errorf("removing %s: %w", p.DeviceID, ErrUnknownDevice)
	}
	if len(member.Devices) == 1 {
		return fmt.Errorf("removing %s from %s: %w", p.DeviceID, p.UserID, ErrCannotRemoveLastDevice)
	}
	removed := member.Devices[index]
	member.Devices = append(member.Devices[:index], member.Devices[index+1:]...)
	s.RemovedDevices = append(s.RemovedDevices, &removed)
	s.removeLockboxesFor(keyset.DeviceScope(p.DeviceID))
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func (s *State) applyChangeKeys(p *ChangeKeysPayload) error {
	switch p.Keys.Scope.Type {
	case keyset.ScopeMember:
		member, ok := s.Member(p.Keys.Scope.Name)
		if !ok {
			return fmt.Errorf("key change for %s: %w", p.Keys.Scope, ErrUnknownMember)
		}
		if p.Keys.Generation <= member.Keys.Generation {
			return fmt.Errorf("member keys %d -> %d: %w", member.Keys.Generation, p.Keys.Generation, ErrKeyRotation)
		}
		member.Keys = p.Keys
	case keyset.ScopeDevice:
		device, ok := s.Device(p.Keys.Scope.Name)
		if !ok {
			return fmt.Errorf("key change for %s: %w", p.Keys.Scope, ErrUnknownDevice)
		}
		if p.Keys.Generation <= device.Keys.Generation {
			return fmt.Errorf("device keys %d -> %d: %w", device.Keys.Generation, p.Keys.Generation, ErrKeyRotation)
		}
		device.Keys = p.Keys
	case keyset.ScopeServer:
		server, ok := s.Server(p.Keys.Scope.Name)
		if !ok {
			return fmt.Errorf("key change for %s: %w", p.Keys.Scope, ErrUnknownMember)
		}
		if p.Keys.Generation <= server.Keys.Generation {
			return fmt.Errorf("server keys %d -> %d: %w", server.Keys.Generation, p.Keys.Generation, ErrKeyRotation)
		}
		server.Keys = p.Keys
	default:
		return fmt.Errorf("key change for %s: %w", p.Keys.Scope, ErrMalformedLink)
	}
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func (s *State) applyInvite(p *InvitePayload) error {
	if _, exists := s.Invitations[p.Invitation.ID]; exists {
		return nil
	}
	s.Invitations[p.Invitation.ID] = &InvitationState{
		Invitation:    p.Invitation,
		RemainingUses: p.Invitation.MaxUses,
	}
	return nil
}

func (s *State) applyRevokeInvitation(p *RevokeInvitationPayload) error {
	inv, ok := s.Invitations[p.ID]
	if !ok {
		return fmt.Errorf("revoking %s: %w", p.ID, invitation.ErrNotFound)
	}
	inv.Revoked = true
	return nil
}

func (s *State) applyAdmit(p *AdmitPayload, at time.Time) error {
	inv, ok := s.Invitations[p.ID]
	if !ok {
		return fmt.Errorf("admitting under %s: %w", p.ID, invitation.ErrNotFound)
	}
	if inv.Revoked {
		return fmt.Errorf("admitting under %s: %w", p.ID, invitation.ErrRevoked)
	}
	if _, exists := s.Member(p.Member.UserID); exists {
		// The same user admitted on both sides of a merge: the first
		// admission in sequence order consumed the use; later ones
		// are no-ops.
		return nil
	}
	if inv.RemainingUses < 1 {
		return fmt.Errorf("admitting under %s: %w", p.ID, invitation.ErrExhausted)
	}
	if inv.UserID != "" && p.Member.UserID != inv.UserID {
		return fmt.Errorf("invitation %s is bound to %s, not %s: %w", p.ID, inv.UserID, p.Member.UserID, invitation.ErrProofInvalid)
	}
	if err := inv.Invitation.Validate(p.Proof, at); err != nil {
		return err
	}

	inv.RemainingUses--
	if inv.RemainingUses == 0 {
		inv.Used = true
	}
	inv.Admitted = append(inv.Admitted, p.Member.UserID)
	return s.applyAddMember(&AddMemberPayload{Member: p.Member, Lockboxes: p.Lockboxes})
}

func (s *State) applyAddServer(p *AddServerPayload) error {
	if _, exists := s.Server(p.Server.Host); exists {
		return nil
	}
	server := p.Server
	s.Servers = append(s.Servers, &server)
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func (s *State) applyRemoveServer(p *RemoveServerPayload) error {
	if _, ok := s.Server(p.Host); !ok {
		return nil
	}
	kept := s.Servers[:0]
	for _, srv := range s.Servers {
		if srv.Host != p.Host {
			kept = append(kept, srv)
		}
	}
	s.Servers = kept
	s.removeLockboxesFor(keyset.ServerScope(p.Host))
	s.Lockboxes = append(s.Lockboxes, p.Lockboxes...)
	return nil
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func removeString(list []string, drop string) []string {
	kept := list[:0]
	for _, s := range list {
		if s != drop {
			kept = append(kept, s)
		}
	}
	return kept
}
