// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"errors"
	"testing"
	"time"

	"github.com/quorate/quorate/lib/graph"
	"github.com/quorate/quorate/lib/invitation"
	"github.com/quorate/quorate/lib/keyset"
)

func TestNonAdminActionDropped(t *testing.T) {
	alice, _, clk := newTestTeam(t)
	bobCtx := testContext(t, "bob", "bob-laptop")
	if err := alice.AddMember(bobCtx.Member()); err != nil {
		t.Fatalf("AddMember() error: %v", err)
	}
	bob := adopt(t, alice, bobCtx, clk)

	// Bob is not an admin; his ADD_MEMBER link lands on the graph but
	// the reducer drops it.
	carolCtx := testContext(t, "carol", "carol-laptop")
	if err := bob.AddMember(carolCtx.Member()); err != nil {
		t.Fatalf("AddMember() error: %v", err)
	}
	if _, ok := bob.State().Member("carol"); ok {
		t.Fatal("non-admin ADD_MEMBER took effect")
	}

	// The dropped link does not resurrect on a peer either.
	if err := alice.Merge(bob.Graph()); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if _, ok := alice.State().Member("carol"); ok {
		t.Fatal("non-admin ADD_MEMBER took effect after merge")
	}
}

func TestForgedSignerDropped(t *testing.T) {
	alice, _, clk := newTestTeam(t)

	// A link claiming to be alice's laptop but signed with a different
	// key fails the key-on-record check.
	mallory, err := keyset.New(keyset.DeviceScope("alice-laptop"))
	if err != nil {
		t.Fatalf("keyset.New() error: %v", err)
	}
	g := alice.Graph()
	forged := graph.SignContext{
		UserID:     "alice",
		DeviceID:   "alice-laptop",
		DeviceKeys: mallory.SignKeypair(),
	}
	if _, err := g.Append(ActionSetTeamName, SetTeamNamePayload{TeamName: "hijacked"}, forged, clk.Now()); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	sequence, err := g.Sequence(StrongRemove(testLogger()))
	if err != nil {
		t.Fatalf("Sequence() error: %v", err)
	}
	state, err := Reduce(sequence, testLogger())
	if err != nil {
		t.Fatalf("Reduce() error: %v", err)
	}
	if state.TeamName != "engineering" {
		t.Fatalf("TeamName = %q, forged rename took effect", state.TeamName)
	}
}

func TestUnknownAuthorDropped(t *testing.T) {
	alice, _, clk := newTestTeam(t)

	strangerCtx := testContext(t, "stranger", "stranger-laptop")
	g := alice.Graph()
	if _, err := g.Append(ActionSetTeamName, SetTeamNamePayload{TeamName: "taken over"},
		graph.SignContext{
			UserID:     strangerCtx.UserID,
			DeviceID:   strangerCtx.DeviceID,
			DeviceKeys: strangerCtx.DeviceKeys.SignKeypair(),
		}, clk.Now()); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	sequence, err := g.Sequence(StrongRemove(testLogger()))
	if err != nil {
		t.Fatalf("Sequence() error: %v", err)
	}
	state, err := Reduce(sequence, testLogger())
	if err != nil {
		t.Fatalf("Reduce() error: %v", err)
	}
	if state.TeamName != "engineering" {
		t.Fatalf("TeamName = %q, non-member rename took effect", state.TeamName)
	}
}

func TestInvitationLifecycle(t *testing.T) {
	alice, _, clk := newTestTeam(t)

	seed, err := alice.Invite("", 1, time.Hour)
	if err != nil {
		t.Fatalf("Invite() error: %v", err)
	}
	id := invitation.DeriveID(seed)
	record, ok := alice.State().Invitations[id]
	if !ok {
		t.Fatal("invitation missing from state")
	}
	if record.RemainingUses != 1 {
		t.Fatalf("RemainingUses = %d, want 1", record.RemainingUses)
	}

	// The invitee derives starter keys from the seed and generates a
	// proof of possession.
	deviceKeys, err := keyset.New(keyset.DeviceScope("bob-phone"))
	if err != nil {
		t.Fatalf("keyset.New() error: %v", err)
	}
	bobCtx := Context{
		UserID:     "bob",
		UserKeys:   invitation.StarterKeys(seed, "bob"),
		DeviceID:   "bob-phone",
		DeviceKeys: deviceKeys,
	}
	proof, err := invitation.GenerateProof(seed, "bob")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}

	if err := alice.Admit(proof, bobCtx.UserKeys.Public(), bobCtx.Device()); err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	state := alice.State()
	if _, ok := state.Member("bob"); !ok {
		t.Fatal("admitted member missing")
	}
	record = state.Invitations[id]
	if !record.Used || record.RemainingUses != 0 {
		t.Fatalf("invitation not consumed: used=%v remaining=%d", record.Used, record.RemainingUses)
	}
	if len(record.Admitted) != 1 || record.Admitted[0] != "bob" {
		t.Fatalf("Admitted = %v, want [bob]", record.Admitted)
	}

	// Bob adopts the graph, reaches the team keys through his starter
	// keys, and rotates to keys only he holds.
	bob := adopt(t, alice, bobCtx, clk)
	if _, err := bob.TeamKeys(); err != nil {
		t.Fatalf("bob TeamKeys() before Join error: %v", err)
	}
	if err := bob.Join(); err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	member, _ := bob.State().Member("bob")
	if member.Keys.Generation != 1 {
		t.Fatalf("member generation after Join = %d, want 1", member.Keys.Generation)
	}
	if _, err := bob.TeamKeys(); err != nil {
		t.Fatalf("bob TeamKeys() after Join error: %v", err)
	}

	if err := alice.Merge(bob.Graph()); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	merged, _ := alice.State().Member("bob")
	if merged.Keys.Generation != 1 {
		t.Fatalf("merged member generation = %d, want 1", merged.Keys.Generation)
	}
}

func TestRevokedInvitationRejected(t *testing.T) {
	alice, _, _ := newTestTeam(t)

	seed, err := alice.Invite("", 1, 0)
	if err != nil {
		t.Fatalf("Invite() error: %v", err)
	}
	if err := alice.RevokeInvitation(invitation.DeriveID(seed)); err != nil {
		t.Fatalf("RevokeInvitation() error: %v", err)
	}

	proof, err := invitation.GenerateProof(seed, "bob")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	starter := invitation.StarterKeys(seed, "bob")
	if err := alice.Admit(proof, starter.Public()); !errors.Is(err, invitation.ErrRevoked) {
		t.Fatalf("Admit() after revocation error = %v, want ErrRevoked", err)
	}
}

func TestExpiredInvitationRejected(t *testing.T) {
	alice, _, clk := newTestTeam(t)

	seed, err := alice.Invite("", 1, time.Hour)
	if err != nil {
		t.Fatalf("Invite() error: %v", err)
	}
	clk.Advance(2 * time.Hour)

	proof, err := invitation.GenerateProof(seed, "bob")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	starter := invitation.StarterKeys(seed, "bob")
	if err := alice.Admit(proof, starter.Public()); !errors.Is(err, invitation.ErrExpired) {
		t.Fatalf("Admit() after expiry error = %v, want ErrExpired", err)
	}
}

func TestExhaustedInvitationRejected(t *testing.T) {
	alice, _, _ := newTestTeam(t)

	seed, err := alice.Invite("", 1, 0)
	if err != nil {
		t.Fatalf("Invite() error: %v", err)
	}

	proofBob, err := invitation.GenerateProof(seed, "bob")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	if err := alice.Admit(proofBob, invitation.StarterKeys(seed, "bob").Public()); err != nil {
		t.Fatalf("Admit(bob) error: %v", err)
	}

	proofCarol, err := invitation.GenerateProof(seed, "carol")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	err = alice.Admit(proofCarol, invitation.StarterKeys(seed, "carol").Public())
	if !errors.Is(err, invitation.ErrExhausted) {
		t.Fatalf("Admit(carol) error = %v, want ErrExhausted", err)
	}
}

func TestBoundInvitationRejectsOtherUser(t *testing.T) {
	alice, _, _ := newTestTeam(t)

	seed, err := alice.Invite("bob", 1, 0)
	if err != nil {
		t.Fatalf("Invite() error: %v", err)
	}
	proof, err := invitation.GenerateProof(seed, "mallory")
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	err = alice.Admit(proof, invitation.StarterKeys(seed, "mallory").Public())
	if !errors.Is(err, invitation.ErrProofInvalid) {
		t.Fatalf("Admit() as wrong user error = %v, want ErrProofInvalid", err)
	}
}

func TestNonAdminInviteDropped(t *testing.T) {
	alice, _, clk := newTestTeam(t)
	bobCtx := testContext(t, "bob", "bob-laptop")
	if err := alice.AddMember(bobCtx.Member()); err != nil {
		t.Fatalf("AddMember() error: %v", err)
	}
	bob := adopt(t, alice, bobCtx, clk)

	seed, err := bob.Invite("", 1, 0)
	if err != nil {
		t.Fatalf("Invite() error: %v", err)
	}
	if _, ok := bob.State().Invitations[invitation.DeriveID(seed)]; ok {
		t.Fatal("non-admin INVITE took effect")
	}
}

func TestStaleKeyChangeDropped(t *testing.T) {
	alice, ctx, clk := newTestTeam(t)

	// A CHANGE_MEMBER_KEYS that does not advance the generation is
	// dropped by the reducer.
	replacement, err := keyset.New(keyset.MemberScope("alice"))
	if err != nil {
		t.Fatalf("keyset.New() error: %v", err)
	}
	stale := replacement.Public() // still generation 0
	g := alice.Graph()
	if _, err := g.Append(ActionChangeMemberKeys, ChangeKeysPayload{Keys: stale},
		graph.SignContext{
			UserID:     ctx.UserID,
			DeviceID:   ctx.DeviceID,
			DeviceKeys: ctx.DeviceKeys.SignKeypair(),
		}, clk.Now()); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	sequence, err := g.Sequence(StrongRemove(testLogger()))
	if err != nil {
		t.Fatalf("Sequence() error: %v", err)
	}
	state, err := Reduce(sequence, testLogger())
	if err != nil {
		t.Fatalf("Reduce() error: %v", err)
	}
	member, _ := state.Member("alice")
	if member.Keys != ctx.UserKeys.Public() {
		t.Fatal("stale key change replaced the member keys")
	}
}
