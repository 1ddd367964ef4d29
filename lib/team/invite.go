// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"fmt"
	"time"

	"github.com/quorate/quorate/lib/invitation"
	"github.com/quorate/quorate/lib/keyset"
	"github.com/quorate/quorate/lib/lockbox"
)

// Invite posts an invitation and returns the secret seed to hand to
// the invitee out of band. maxUses values below one are treated as
// one; a zero ttl means the invitation never expires. A non-empty
// userID binds the invitation to that user name, the form used when a
// member invites one of their own future devices.
func (t *Team) Invite(userID string, maxUses int, ttl time.Duration) (invitation.Seed, error) {
	seed, err := invitation.NewSeed()
	if err != nil {
		return "", err
	}

	var expiration time.Time
	if ttl > 0 {
		expiration = t.clk.Now().Add(ttl)
	}
	inv := invitation.New(seed, maxUses, expiration, userID)
	if err := t.append(ActionInvite, InvitePayload{Invitation: inv}); err != nil {
		return "", err
	}
	return seed, nil
}

// RevokeInvitation marks an invitation revoked. Proofs presented after
// the revocation lands are rejected; races between a revocation and a
// concurrent admission settle in sequence order.
func (t *Team) RevokeInvitation(id string) error {
	t.mu.RLock()
	_, ok := t.state.Invitations[id]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("invitation %s: %w", id, invitation.ErrNotFound)
	}
	return t.append(ActionRevokeInvitation, RevokeInvitationPayload{ID: id})
}

// Admit validates a proof of invitation and adds the invitee as a
// member, delivering the current team keys to their keyset. Any
// member can admit; the proof, not the admitting member's authority,
// is what the reducer checks.
func (t *Team) Admit(proof invitation.Proof, memberKeys keyset.PublicKeyset, devices ...Device) error {
	t.mu.RLock()
	record, ok := t.state.Invitations[proof.ID]
	if !ok {
		t.mu.RUnlock()
		return fmt.Errorf("invitation %s: %w", proof.ID, invitation.ErrNotFound)
	}
	if record.Revoked {
		t.mu.RUnlock()
		return fmt.Errorf("invitation %s: %w", proof.ID, invitation.ErrRevoked)
	}
	if record.RemainingUses < 1 {
		t.mu.RUnlock()
		return fmt.Errorf("invitation %s: %w", proof.ID, invitation.ErrExhausted)
	}
	if record.UserID != "" && record.UserID != proof.UserName {
		t.mu.RUnlock()
		return fmt.Errorf("invitation %s is bound to %q: %w", proof.ID, record.UserID, invitation.ErrProofInvalid)
	}
	if err := record.Validate(proof, t.clk.Now()); err != nil {
		t.mu.RUnlock()
		return err
	}
	teamKeys, err := t.keysForLocked(keyset.TeamScope())
	t.mu.RUnlock()
	if err != nil {
		return err
	}

	box, err := lockbox.Seal(teamKeys, memberKeys)
	if err != nil {
		return err
	}
	return t.append(ActionAdmit, AdmitPayload{
		ID:    proof.ID,
		Proof: proof,
		Member: Member{
			UserID:  proof.UserName,
			Keys:    memberKeys,
			Devices: devices,
		},
		Lockboxes: []lockbox.Lockbox{box},
	})
}

// Join completes an admission from the invitee's side, once the graph
// carrying their ADMIT link has been adopted. The invitee arrives
// holding seed-derived starter keys; Join introduces their device if
// the admission did not, then rotates the member keys to a fresh
// generation only they hold.
func (t *Team) Join() error {
	t.mu.RLock()
	_, ok := t.state.Member(t.context.UserID)
	if !ok {
		t.mu.RUnlock()
		return fmt.Errorf("member %q: %w", t.context.UserID, ErrUnknownMember)
	}
	_, haveDevice := t.state.Device(t.context.DeviceID)
	device := t.context.Device()
	userKeys := t.context.UserKeys
	t.mu.RUnlock()

	if !haveDevice {
		box, err := lockbox.Seal(userKeys, device.Keys)
		if err != nil {
			return err
		}
		err = t.append(ActionAddDevice, AddDevicePayload{Device: device, Lockboxes: []lockbox.Lockbox{box}})
		if err != nil {
			return err
		}
	}
	return t.ChangeKeys()
}
