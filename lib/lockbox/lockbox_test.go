// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package lockbox

import (
	"errors"
	"testing"

	"github.com/quorate/quorate/lib/keyset"
)

func mustKeyset(t *testing.T, scope keyset.Scope) keyset.Keyset {
	t.Helper()
	k, err := keyset.New(scope)
	if err != nil {
		t.Fatalf("keyset.New(%v) error: %v", scope, err)
	}
	return k
}

func TestSealOpen(t *testing.T) {
	teamKeys := mustKeyset(t, keyset.TeamScope())
	memberKeys := mustKeyset(t, keyset.MemberScope("alice"))

	b, err := Seal(teamKeys, memberKeys.Public())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if b.ContentsScope != keyset.TeamScope() {
		t.Errorf("ContentsScope = %v, want team", b.ContentsScope)
	}

	opened, err := b.Open(memberKeys)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if opened != teamKeys {
		t.Error("Open() returned different keyset than was sealed")
	}
}

func TestSeal_SelfScope(t *testing.T) {
	teamKeys := mustKeyset(t, keyset.TeamScope())
	if _, err := Seal(teamKeys, teamKeys.Public()); !errors.Is(err, ErrScopeMismatch) {
		t.Errorf("Seal() to own scope: got %v, want ErrScopeMismatch", err)
	}
}

func TestOpen_WrongRecipient(t *testing.T) {
	teamKeys := mustKeyset(t, keyset.TeamScope())
	alice := mustKeyset(t, keyset.MemberScope("alice"))
	bob := mustKeyset(t, keyset.MemberScope("bob"))

	b, err := Seal(teamKeys, alice.Public())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if _, err := b.Open(bob); !errors.Is(err, ErrWrongRecipient) {
		t.Errorf("Open() with wrong keys: got %v, want ErrWrongRecipient", err)
	}
}

func TestRotate(t *testing.T) {
	teamKeys := mustKeyset(t, keyset.TeamScope())
	alice := mustKeyset(t, keyset.MemberScope("alice"))

	b, err := Seal(teamKeys, alice.Public())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	successor, err := teamKeys.Rotate()
	if err != nil {
		t.Fatalf("Rotate() error: %v", err)
	}
	rotated, err := Rotate(b, successor)
	if err != nil {
		t.Fatalf("lockbox Rotate() error: %v", err)
	}
	if rotated.ContentsGeneration != 1 {
		t.Errorf("ContentsGeneration = %d, want 1", rotated.ContentsGeneration)
	}

	opened, err := rotated.Open(alice)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if opened != successor {
		t.Error("rotated lockbox does not contain the successor keyset")
	}
}

func TestRotate_ScopeMismatch(t *testing.T) {
	teamKeys := mustKeyset(t, keyset.TeamScope())
	roleKeys := mustKeyset(t, keyset.RoleScope("managers"))
	alice := mustKeyset(t, keyset.MemberScope("alice"))

	b, err := Seal(teamKeys, alice.Public())
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if _, err := Rotate(b, roleKeys); !errors.Is(err, ErrScopeMismatch) {
		t.Errorf("Rotate() with different scope: got %v, want ErrScopeMismatch", err)
	}
}

// Build the standard delivery graph for one admin member with one
// device: team -> member, admin role -> member, member -> device.
func deliveryGraph(t *testing.T) (boxes []Lockbox, device, member, admin, team keyset.Keyset) {
	t.Helper()
	team = mustKeyset(t, keyset.TeamScope())
	admin = mustKeyset(t, keyset.AdminScope())
	member = mustKeyset(t, keyset.MemberScope("alice"))
	device = mustKeyset(t, keyset.DeviceScope("alice-laptop"))

	for _, pair := range []struct {
		contents  keyset.Keyset
		recipient keyset.Keyset
	}{
		{team, member},
		{admin, member},
		{member, device},
	} {
		b, err := Seal(pair.contents, pair.recipient.Public())
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		boxes = append(boxes, b)
	}
	return boxes, device, member, admin, team
}

func TestVisibleScopes_Transitive(t *testing.T) {
	boxes, device, _, _, _ := deliveryGraph(t)

	visible := VisibleScopes(boxes, device.Scope)
	want := map[keyset.Scope]bool{
		keyset.MemberScope("alice"): true,
		keyset.TeamScope():          true,
		keyset.AdminScope():         true,
	}
	if len(visible) != len(want) {
		t.Fatalf("VisibleScopes() = %v, want %d scopes", visible, len(want))
	}
	for _, scope := range visible {
		if !want[scope] {
			t.Errorf("unexpected visible scope %v", scope)
		}
	}
}

func TestVisibleKeys_Transitive(t *testing.T) {
	boxes, device, member, admin, team := deliveryGraph(t)

	keys := VisibleKeys(boxes, device)
	if len(keys) != 3 {
		t.Fatalf("VisibleKeys() returned %d keysets, want 3", len(keys))
	}
	got := map[keyset.Scope]keyset.Keyset{}
	for _, k := range keys {
		got[k.Scope] = k
	}
	if got[team.Scope] != team {
		t.Error("team keys not reachable from device")
	}
	if got[admin.Scope] != admin {
		t.Error("admin keys not reachable from device")
	}
	if got[member.Scope] != member {
		t.Error("member keys not reachable from device")
	}
}

func TestVisibleKeys_NotReachableForOutsider(t *testing.T) {
	boxes, _, _, _, _ := deliveryGraph(t)
	mallory := mustKeyset(t, keyset.DeviceScope("mallory-laptop"))
	if keys := VisibleKeys(boxes, mallory); len(keys) != 0 {
		t.Errorf("outsider device reached %d keysets, want 0", len(keys))
	}
}

func TestLatest(t *testing.T) {
	team0 := mustKeyset(t, keyset.TeamScope())
	team1, err := team0.Rotate()
	if err != nil {
		t.Fatalf("Rotate() error: %v", err)
	}
	role := mustKeyset(t, keyset.RoleScope("managers"))

	best, ok := Latest([]keyset.Keyset{team0, role, team1}, keyset.TeamScope())
	if !ok {
		t.Fatal("Latest() found no team keys")
	}
	if best.Generation != 1 {
		t.Errorf("Latest() generation = %d, want 1", best.Generation)
	}
	if _, ok := Latest([]keyset.Keyset{team0}, keyset.RoleScope("absent")); ok {
		t.Error("Latest() found keys for an absent scope")
	}
}
