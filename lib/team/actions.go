// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"fmt"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/graph"
	"github.com/quorate/quorate/lib/invitation"
	"github.com/quorate/quorate/lib/keyset"
	"github.com/quorate/quorate/lib/lockbox"
)

// Action types. This is a closed set: the reducer matches every
// variant and drops anything it does not recognize.
const (
	ActionAddMember        = "ADD_MEMBER"
	ActionRemoveMember     = "REMOVE_MEMBER"
	ActionAddRole          = "ADD_ROLE"
	ActionRemoveRole       = "REMOVE_ROLE"
	ActionAddMemberRole    = "ADD_MEMBER_ROLE"
	ActionRemoveMemberRole = "REMOVE_MEMBER_ROLE"
	ActionAddDevice        = "ADD_DEVICE"
	ActionRemoveDevice     = "REMOVE_DEVICE"
	ActionChangeMemberKeys = "CHANGE_MEMBER_KEYS"
	ActionChangeDeviceKeys = "CHANGE_DEVICE_KEYS"
	ActionInvite           = "INVITE"
	ActionRevokeInvitation = "REVOKE_INVITATION"
	ActionAdmit            = "ADMIT"
	ActionAddServer        = "ADD_SERVER"
	ActionRemoveServer     = "REMOVE_SERVER"
	ActionChangeServerKeys = "CHANGE_SERVER_KEYS"
	ActionSetTeamName      = "SET_TEAM_NAME"
	ActionAddMessage       = "ADD_MESSAGE"
)

// Member is a user's membership record: identity, current public
// keyset, role grants, and devices.
type Member struct {
	UserID  string              `cbor:"userId"`
	Keys    keyset.PublicKeyset `cbor:"keys"`
	Roles   []string            `cbor:"roles,omitempty"`
	Devices []Device            `cbor:"devices,omitempty"`
}

// Device is one of a member's devices with its current public keyset.
// Device ids are unique across the team.
type Device struct {
	UserID   string              `cbor:"userId"`
	DeviceID string              `cbor:"deviceId"`
	Keys     keyset.PublicKeyset `cbor:"keys"`
}

// Server is a non-voting member keyed by host name. Servers hold team
// keys through lockboxes but never count as admins.
type Server struct {
	Host string              `cbor:"host"`
	Keys keyset.PublicKeyset `cbor:"keys"`
}

// Role is a named role. ADMIN is built in; everything else is
// application-defined.
type Role struct {
	Name string `cbor:"name"`
}

// RootPayload initializes the team: name, founder (who becomes the
// first admin), and the initial lockbox graph delivering team and
// admin keys to the founder.
type RootPayload struct {
	TeamName  string            `cbor:"teamName"`
	Founder   Member            `cbor:"founder"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes,omitempty"`
}

// AddMemberPayload adds a member with optional role grants. The
// lockboxes deliver team keys (and granted role keys) to the new
// member's keyset.
type AddMemberPayload struct {
	Member    Member            `cbor:"member"`
	Roles     []string          `cbor:"roles,omitempty"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes,omitempty"`
}

// RemoveMemberPayload removes a member. The lockboxes deliver the
// rotated team (and role) keys to the remaining members.
type RemoveMemberPayload struct {
	UserID    string            `cbor:"userId"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes,omitempty"`
}

// AddRolePayload creates a role; the lockboxes deliver the new role
// keys to the admin keyset so any admin can grant them onward.
type AddRolePayload struct {
	Role      Role              `cbor:"role"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes,omitempty"`
}

// RemoveRolePayload deletes a role. Removing ADMIN is forbidden.
type RemoveRolePayload struct {
	RoleName string `cbor:"roleName"`
}

// MemberRolePayload grants or revokes a role. On grant the lockboxes
// deliver role keys to the member; on revocation of ADMIN they
// deliver the rotated admin keys to the remaining admins.
type MemberRolePayload struct {
	UserID    string            `cbor:"userId"`
	RoleName  string            `cbor:"roleName"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes,omitempty"`
}

// AddDevicePayload attaches a device to its member. The lockboxes
// deliver the member keys to the new device.
type AddDevicePayload struct {
	Device    Device            `cbor:"device"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes,omitempty"`
}

// RemoveDevicePayload detaches a device. The lockboxes deliver keys
// rotated because this device could reach them.
type RemoveDevicePayload struct {
	UserID    string            `cbor:"userId"`
	DeviceID  string            `cbor:"deviceId"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes,omitempty"`
}

// ChangeKeysPayload replaces the public keyset of the author's own
// member, device, or server scope. The generation must advance.
type ChangeKeysPayload struct {
	Keys      keyset.PublicKeyset `cbor:"keys"`
	Lockboxes []lockbox.Lockbox   `cbor:"lockboxes,omitempty"`
}

// InvitePayload records an outstanding invitation.
type InvitePayload struct {
	Invitation invitation.Invitation `cbor:"invitation"`
}

// RevokeInvitationPayload marks an invitation revoked.
type RevokeInvitationPayload struct {
	ID string `cbor:"id"`
}

// AdmitPayload consumes one use of an invitation and adds the proven
// invitee as a member. The lockboxes deliver current team keys to the
// invitee's keyset.
type AdmitPayload struct {
	ID        string                `cbor:"id"`
	Proof     invitation.Proof      `cbor:"proof"`
	Member    Member                `cbor:"member"`
	Lockboxes []lockbox.Lockbox     `cbor:"lockboxes,omitempty"`
}

// AddServerPayload adds a server member.
type AddServerPayload struct {
	Server    Server            `cbor:"server"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes,omitempty"`
}

// RemoveServerPayload removes a server member; lockboxes carry the
// rotated team keys, as for member removal.
type RemoveServerPayload struct {
	Host      string            `cbor:"host"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes,omitempty"`
}

// SetTeamNamePayload renames the team.
type SetTeamNamePayload struct {
	TeamName string `cbor:"teamName"`
}

// AddMessagePayload appends an opaque message to the team log. The
// graph and reducer never interpret it.
type AddMessagePayload struct {
	Message codec.RawMessage `cbor:"message"`
}

// decodePayload decodes a link's payload into its typed form based on
// the link's action type.
func decodePayload(l *graph.Link) (any, error) {
	target := func() any {
		switch l.Body.Type {
		case graph.TypeRoot:
			return &RootPayload{}
		case ActionAddMember:
			return &AddMemberPayload{}
		case ActionRemoveMember:
			return &RemoveMemberPayload{}
		case ActionAddRole:
			return &AddRolePayload{}
		case ActionRemoveRole:
			return &RemoveRolePayload{}
		case ActionAddMemberRole, ActionRemoveMemberRole:
			return &MemberRolePayload{}
		case ActionAddDevice:
			return &AddDevicePayload{}
		case ActionRemoveDevice:
			return &RemoveDevicePayload{}
		case ActionChangeMemberKeys, ActionChangeDeviceKeys, ActionChangeServerKeys:
			return &ChangeKeysPayload{}
		case ActionInvite:
			return &InvitePayload{}
		case ActionRevokeInvitation:
			return &RevokeInvitationPayload{}
		case ActionAdmit:
			return &AdmitPayload{}
		case ActionAddServer:
			return &AddServerPayload{}
		case ActionRemoveServer:
			return &RemoveServerPayload{}
		case ActionSetTeamName:
			return &SetTeamNamePayload{}
		case ActionAddMessage:
			return &AddMessagePayload{}
		default:
			return nil
		}
	}()
	if target == nil {
		return nil, fmt.Errorf("action type %q: %w", l.Body.Type, ErrMalformedLink)
	}
	if err := codec.Unmarshal(l.Body.Payload, target); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", l.Body.Type, err)
	}
	return target, nil
}
