// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"fmt"

	"github.com/quorate/quorate/lib/crypto"
	"github.com/quorate/quorate/lib/keyset"
	"github.com/quorate/quorate/lib/lockbox"
)

// Envelope is a symmetric ciphertext addressed to everyone holding the
// named scope's keys at the named generation. The scope label is bound
// into the AEAD as associated data, so an envelope cannot be replayed
// under a different scope.
type Envelope struct {
	Scope      keyset.Scope `cbor:"scope"`
	Generation uint32       `cbor:"generation"`
	Sealed     []byte       `cbor:"sealed"`
}

func envelopeAAD(scope keyset.Scope, generation uint32) []byte {
	return []byte(fmt.Sprintf("%s#%d", scope, generation))
}

// Keyring returns every keyset with secrets the local device can
// reach: its own device and user keys plus everything the lockbox
// graph delivers to them, across all generations.
func (t *Team) Keyring() []keyset.Keyset {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.keyringLocked()
}

func (t *Team) keyringLocked() []keyset.Keyset {
	keys := []keyset.Keyset{t.context.DeviceKeys, t.context.UserKeys}
	keys = append(keys, lockbox.VisibleKeys(t.state.Lockboxes, t.context.DeviceKeys)...)
	// Member keys arrive in the context directly (admission, or the
	// founder's own generation), not always through a lockbox addressed
	// to the device, so the walk starts from both.
	keys = append(keys, lockbox.VisibleKeys(t.state.Lockboxes, t.context.UserKeys)...)
	return keys
}

// KeysFor returns the latest-generation keyset for scope that the
// local device can reach, or ErrNoKeys.
func (t *Team) KeysFor(scope keyset.Scope) (keyset.Keyset, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.keysForLocked(scope)
}

func (t *Team) keysForLocked(scope keyset.Scope) (keyset.Keyset, error) {
	keys, ok := lockbox.Latest(t.keyringLocked(), scope)
	if !ok {
		return keyset.Keyset{}, fmt.Errorf("%s: %w", scope, ErrNoKeys)
	}
	return keys, nil
}

func (t *Team) keysAtLocked(scope keyset.Scope, generation uint32) (keyset.Keyset, error) {
	for _, k := range t.keyringLocked() {
		if k.Scope == scope && k.Generation == generation {
			return k, nil
		}
	}
	return keyset.Keyset{}, fmt.Errorf("%s#%d: %w", scope, generation, ErrNoKeys)
}

// TeamKeys returns the current team keyset, reachable by every member.
func (t *Team) TeamKeys() (keyset.Keyset, error) {
	return t.KeysFor(keyset.TeamScope())
}

// AdminKeys returns the current admin keyset. Fails with ErrNoKeys for
// non-admin members.
func (t *Team) AdminKeys() (keyset.Keyset, error) {
	return t.KeysFor(keyset.AdminScope())
}

// RoleKeys returns the current keyset for a role the local member
// holds (or can reach as an admin).
func (t *Team) RoleKeys(roleName string) (keyset.Keyset, error) {
	return t.KeysFor(keyset.RoleScope(roleName))
}

// Encrypt seals plaintext to everyone holding the scope's current
// keys.
func (t *Team) Encrypt(plaintext []byte, scope keyset.Scope) (Envelope, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys, err := t.keysForLocked(scope)
	if err != nil {
		return Envelope{}, err
	}
	sealed, err := crypto.SealSymmetric(keys.SymmetricKey(), plaintext, envelopeAAD(keys.Scope, keys.Generation))
	if err != nil {
		return Envelope{}, fmt.Errorf("encrypting for %s: %w", scope, err)
	}
	return Envelope{Scope: keys.Scope, Generation: keys.Generation, Sealed: sealed}, nil
}

// Decrypt opens an envelope using the keys at the generation it names.
// Envelopes sealed under superseded generations stay readable: old
// keysets are never discarded from the lockbox graph.
func (t *Team) Decrypt(envelope Envelope) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys, err := t.keysAtLocked(envelope.Scope, envelope.Generation)
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.OpenSymmetric(keys.SymmetricKey(), envelope.Sealed, envelopeAAD(envelope.Scope, envelope.Generation))
	if err != nil {
		return nil, fmt.Errorf("decrypting %s#%d envelope: %w", envelope.Scope, envelope.Generation, err)
	}
	return plaintext, nil
}

// Sign produces a detached signature over message with the local
// device's signing key.
func (t *Team) Sign(message []byte) crypto.Signature {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.context.DeviceKeys.SignKeypair().Sign(message)
}

// Verify checks a signature against the recorded signing key of the
// named device.
func (t *Team) Verify(message []byte, signature crypto.Signature, deviceID string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	device, ok := t.state.Device(deviceID)
	if !ok {
		return fmt.Errorf("device %q: %w", deviceID, ErrUnknownDevice)
	}
	if !device.Keys.Signature.Verify(message, signature) {
		return fmt.Errorf("signature from device %q: %w", deviceID, crypto.ErrSignatureInvalid)
	}
	return nil
}

// ChangeKeys rotates the local member's keyset to a fresh generation
// and reseals it to each of the member's devices. The superseded
// generation is resealed alongside: it is what unlocks every lockbox
// already addressed to the member, so devices must keep reaching it.
func (t *Team) ChangeKeys() error {
	return t.changeKeysExcluding("")
}

// changeKeysExcluding is ChangeKeys with one device left out of the
// reseal. Used during device removal, where the departing device must
// not receive the successor keys.
func (t *Team) changeKeysExcluding(excludedDeviceID string) error {
	t.mu.Lock()
	previous := t.context.UserKeys
	rotated, err := previous.Rotate()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	member, ok := t.state.Member(t.context.UserID)
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("member %q: %w", t.context.UserID, ErrUnknownMember)
	}
	var boxes []lockbox.Lockbox
	for _, device := range member.Devices {
		if device.DeviceID == excludedDeviceID {
			continue
		}
		for _, generation := range []keyset.Keyset{previous, rotated} {
			b, err := lockbox.Seal(generation, device.Keys)
			if err != nil {
				t.mu.Unlock()
				return err
			}
			boxes = append(boxes, b)
		}
	}
	t.context.UserKeys = rotated
	t.mu.Unlock()

	return t.append(ActionChangeMemberKeys, ChangeKeysPayload{Keys: rotated.Public(), Lockboxes: boxes})
}

// rotationPlan collects the scopes whose keys must be replaced when a
// principal loses access, and the recipients each replacement is
// resealed to.
type rotationPlan struct {
	rotations []rotation
}

type rotation struct {
	scope      keyset.Scope
	recipients []keyset.PublicKeyset
}

func (p *rotationPlan) add(scope keyset.Scope, recipients ...keyset.PublicKeyset) {
	for i := range p.rotations {
		if p.rotations[i].scope == scope {
			p.rotations[i].recipients = append(p.rotations[i].recipients, recipients...)
			return
		}
	}
	p.rotations = append(p.rotations, rotation{scope: scope, recipients: recipients})
}

// execute rotates every planned scope to its next generation and seals
// the successor to the planned recipients, deduplicated. Scopes whose
// current secrets the local context cannot reach are fatal: only
// someone holding a key can rotate it.
func (p *rotationPlan) execute(t *Team) ([]lockbox.Lockbox, error) {
	var boxes []lockbox.Lockbox
	for _, r := range p.rotations {
		current, err := t.keysForLocked(r.scope)
		if err != nil {
			return nil, err
		}
		successor, err := current.Rotate()
		if err != nil {
			return nil, err
		}
		sealed := map[keyset.PublicKeyset]bool{}
		for _, recipient := range r.recipients {
			if recipient.IsZero() || sealed[recipient] || recipient.Scope == r.scope {
				continue
			}
			sealed[recipient] = true
			b, err := lockbox.Seal(successor, recipient)
			if err != nil {
				return nil, err
			}
			boxes = append(boxes, b)
		}
	}
	return boxes, nil
}

// planMemberRemoval rotates everything the departing member could
// reach: the team keys and every role keyset they held. Successors go
// to the remaining members (team keys), the remaining role holders
// plus the admin keyset (role keys), and the remaining admins (admin
// keys, when the member was an admin).
func (t *Team) planMemberRemoval(target *Member) *rotationPlan {
	plan := &rotationPlan{}

	for _, m := range t.state.Members {
		if m.UserID != target.UserID {
			plan.add(keyset.TeamScope(), m.Keys)
		}
	}
	for _, srv := range t.state.Servers {
		plan.add(keyset.TeamScope(), srv.Keys)
	}

	for _, roleName := range target.Roles {
		scope := keyset.RoleScope(roleName)
		for _, holder := range t.state.MembersWithRole(roleName) {
			if holder.UserID != target.UserID {
				plan.add(scope, holder.Keys)
			}
		}
		if roleName != keyset.AdminRoleName {
			// Non-admin role keys also reseal to the admin keyset so
			// admins can keep granting the role.
			plan.add(scope, adminRecipient(t, scope))
		}
	}
	return plan
}

// adminRecipient returns the admin keyset as a lockbox recipient for
// resealing scope keys, falling back to nothing when the local context
// cannot see the admin keys (the caller's authority check will reject
// the action anyway).
func adminRecipient(t *Team, scope keyset.Scope) keyset.PublicKeyset {
	adminKeys, err := t.keysForLocked(keyset.AdminScope())
	if err != nil {
		return keyset.PublicKeyset{}
	}
	return adminKeys.Public()
}

// planDeviceRemoval rotates everything the departing device could
// reach: the owner's member keys are handled separately by the owner,
// but the team keys and the owner's role keys were visible through the
// member keys the device held, so they rotate here.
func (t *Team) planDeviceRemoval(owner *Member) *rotationPlan {
	plan := &rotationPlan{}

	for _, m := range t.state.Members {
		plan.add(keyset.TeamScope(), m.Keys)
	}
	for _, srv := range t.state.Servers {
		plan.add(keyset.TeamScope(), srv.Keys)
	}

	for _, roleName := range owner.Roles {
		scope := keyset.RoleScope(roleName)
		for _, holder := range t.state.MembersWithRole(roleName) {
			plan.add(scope, holder.Keys)
		}
		if roleName != keyset.AdminRoleName {
			plan.add(scope, adminRecipient(t, scope))
		}
	}
	return plan
}
