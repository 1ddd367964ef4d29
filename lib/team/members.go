// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"fmt"

	"github.com/quorate/quorate/lib/keyset"
	"github.com/quorate/quorate/lib/lockbox"
)

// AddMember adds a member with optional role grants, delivering the
// current team keys (and each granted role's keys) to the new member.
func (t *Team) AddMember(member Member, roles ...string) error {
	t.mu.RLock()
	sealings := []sealing{}
	teamKeys, err := t.keysForLocked(keyset.TeamScope())
	if err != nil {
		t.mu.RUnlock()
		return err
	}
	sealings = append(sealings, sealing{teamKeys, member.Keys})
	for _, roleName := range roles {
		if !t.state.HasRole(roleName) {
			t.mu.RUnlock()
			return fmt.Errorf("role %q: %w", roleName, ErrUnknownRole)
		}
		roleKeys, err := t.keysForLocked(keyset.RoleScope(roleName))
		if err != nil {
			t.mu.RUnlock()
			return err
		}
		sealings = append(sealings, sealing{roleKeys, member.Keys})
	}
	t.mu.RUnlock()

	boxes, err := sealAll(sealings...)
	if err != nil {
		return err
	}
	return t.append(ActionAddMember, AddMemberPayload{Member: member, Roles: roles, Lockboxes: boxes})
}

// Remove removes a member and rotates every keyset they could reach:
// the team keys, and the keys of every role they held. The rotated
// keys travel in the removal link's lockboxes, addressed to the
// remaining holders.
func (t *Team) Remove(userID string) error {
	t.mu.RLock()
	target, ok := t.state.Member(userID)
	if !ok {
		t.mu.RUnlock()
		return fmt.Errorf("member %q: %w", userID, ErrUnknownMember)
	}
	if t.state.IsAdmin(userID) && len(t.state.Admins()) == 1 {
		t.mu.RUnlock()
		return fmt.Errorf("removing %q: %w", userID, ErrCannotRemoveOnlyAdmin)
	}
	boxes, err := t.planMemberRemoval(target).execute(t)
	t.mu.RUnlock()
	if err != nil {
		return err
	}
	return t.append(ActionRemoveMember, RemoveMemberPayload{UserID: userID, Lockboxes: boxes})
}

// AddRole creates a role with a fresh keyset, sealed to the admin
// keyset so any admin can grant it onward.
func (t *Team) AddRole(roleName string) error {
	t.mu.RLock()
	adminKeys, err := t.keysForLocked(keyset.AdminScope())
	t.mu.RUnlock()
	if err != nil {
		return err
	}
	roleKeys, err := keyset.New(keyset.RoleScope(roleName))
	if err != nil {
		return fmt.Errorf("creating %q role keys: %w", roleName, err)
	}
	box, err := lockbox.Seal(roleKeys, adminKeys.Public())
	if err != nil {
		return err
	}
	return t.append(ActionAddRole, AddRolePayload{Role: Role{Name: roleName}, Lockboxes: []lockbox.Lockbox{box}})
}

// RemoveRole deletes a role. The built-in ADMIN role cannot be
// removed.
func (t *Team) RemoveRole(roleName string) error {
	if roleName == keyset.AdminRoleName {
		return ErrCannotRemoveAdminRole
	}
	t.mu.RLock()
	known := t.state.HasRole(roleName)
	t.mu.RUnlock()
	if !known {
		return fmt.Errorf("role %q: %w", roleName, ErrUnknownRole)
	}
	return t.append(ActionRemoveRole, RemoveRolePayload{RoleName: roleName})
}

// AddMemberRole grants a role, delivering the role keys to the
// member.
func (t *Team) AddMemberRole(userID, roleName string) error {
	t.mu.RLock()
	member, ok := t.state.Member(userID)
	if !ok {
		t.mu.RUnlock()
		return fmt.Errorf("member %q: %w", userID, ErrUnknownMember)
	}
	if !t.state.HasRole(roleName) {
		t.mu.RUnlock()
		return fmt.Errorf("role %q: %w", roleName, ErrUnknownRole)
	}
	roleKeys, err := t.keysForLocked(keyset.RoleScope(roleName))
	recipient := member.Keys
	t.mu.RUnlock()
	if err != nil {
		return err
	}
	box, err := lockbox.Seal(roleKeys, recipient)
	if err != nil {
		return err
	}
	return t.append(ActionAddMemberRole, MemberRolePayload{
		UserID: userID, RoleName: roleName, Lockboxes: []lockbox.Lockbox{box},
	})
}

// RemoveMemberRole revokes a role grant. Revoking ADMIN rotates the
// admin keyset to the remaining admins; revoking any other role
// rotates that role's keyset to its remaining holders.
func (t *Team) RemoveMemberRole(userID, roleName string) error {
	t.mu.RLock()
	if !t.state.MemberHasRole(userID, roleName) {
		t.mu.RUnlock()
		return fmt.Errorf("member %q does not hold role %q: %w", userID, roleName, ErrUnknownRole)
	}
	if roleName == keyset.AdminRoleName && len(t.state.Admins()) == 1 {
		t.mu.RUnlock()
		return fmt.Errorf("demoting %q: %w", userID, ErrCannotRemoveOnlyAdmin)
	}

	scope := keyset.RoleScope(roleName)
	plan := &rotationPlan{}
	for _, holder := range t.state.MembersWithRole(roleName) {
		if holder.UserID != userID {
			plan.add(scope, holder.Keys)
		}
	}
	if roleName != keyset.AdminRoleName {
		plan.add(scope, adminRecipient(t, scope))
	}
	boxes, err := plan.execute(t)
	t.mu.RUnlock()
	if err != nil {
		return err
	}
	return t.append(ActionRemoveMemberRole, MemberRolePayload{
		UserID: userID, RoleName: roleName, Lockboxes: boxes,
	})
}

// AddDevice attaches another device to the local member, delivering
// the member keys to it. Only the member themselves can do this: the
// member secrets are needed to seal the lockbox.
func (t *Team) AddDevice(device Device) error {
	t.mu.RLock()
	owner := t.context.UserID
	userKeys := t.context.UserKeys
	t.mu.RUnlock()

	if device.UserID != owner {
		return fmt.Errorf("adding device for %q as %q: %w", device.UserID, owner, ErrUnknownAuthor)
	}
	box, err := lockbox.Seal(userKeys, device.Keys)
	if err != nil {
		return err
	}
	return t.append(ActionAddDevice, AddDevicePayload{Device: device, Lockboxes: []lockbox.Lockbox{box}})
}

// RemoveDevice detaches a device and rotates every keyset it could
// reach. When the device belongs to the local member, the member keys
// rotate first (to the surviving devices), then the team and role
// keys rotate as for any compromised-reachability event.
func (t *Team) RemoveDevice(userID, deviceID string) error {
	t.mu.RLock()
	owner, ok := t.state.Member(userID)
	if !ok {
		t.mu.RUnlock()
		return fmt.Errorf("member %q: %w", userID, ErrUnknownMember)
	}
	present := false
	for _, d := range owner.Devices {
		if d.DeviceID == deviceID {
			present = true
		}
	}
	if !present {
		t.mu.RUnlock()
		return fmt.Errorf("device %q: %w", deviceID, ErrUnknownDevice)
	}
	if len(owner.Devices) == 1 {
		t.mu.RUnlock()
		return fmt.Errorf("removing device %q: %w", deviceID, ErrCannotRemoveLastDevice)
	}
	own := userID == t.context.UserID
	t.mu.RUnlock()

	if own {
		if err := t.changeKeysExcluding(deviceID); err != nil {
			return err
		}
	}

	t.mu.RLock()
	owner, ok = t.state.Member(userID)
	if !ok {
		t.mu.RUnlock()
		return fmt.Errorf("member %q: %w", userID, ErrUnknownMember)
	}
	boxes, err := t.planDeviceRemoval(owner).execute(t)
	t.mu.RUnlock()
	if err != nil {
		return err
	}
	return t.append(ActionRemoveDevice, RemoveDevicePayload{
		UserID: userID, DeviceID: deviceID, Lockboxes: boxes,
	})
}

// AddServer adds a server member, delivering the current team keys to
// its keyset.
func (t *Team) AddServer(server Server) error {
	t.mu.RLock()
	teamKeys, err := t.keysForLocked(keyset.TeamScope())
	t.mu.RUnlock()
	if err != nil {
		return err
	}
	box, err := lockbox.Seal(teamKeys, server.Keys)
	if err != nil {
		return err
	}
	return t.append(ActionAddServer, AddServerPayload{Server: server, Lockboxes: []lockbox.Lockbox{box}})
}

// RemoveServer removes a server and rotates the team keys it held.
func (t *Team) RemoveServer(host string) error {
	t.mu.RLock()
	target, ok := t.state.Server(host)
	if !ok {
		t.mu.RUnlock()
		return fmt.Errorf("server %q: %w", host, ErrUnknownMember)
	}
	plan := &rotationPlan{}
	for _, m := range t.state.Members {
		plan.add(keyset.TeamScope(), m.Keys)
	}
	for _, srv := range t.state.Servers {
		if srv.Host != target.Host {
			plan.add(keyset.TeamScope(), srv.Keys)
		}
	}
	boxes, err := plan.execute(t)
	t.mu.RUnlock()
	if err != nil {
		return err
	}
	return t.append(ActionRemoveServer, RemoveServerPayload{Host: host, Lockboxes: boxes})
}
