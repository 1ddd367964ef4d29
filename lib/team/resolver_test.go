// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"testing"
	"time"

	"github.com/quorate/quorate/lib/invitation"
	"github.com/quorate/quorate/lib/keyset"
)

func invitationStarter(t *testing.T, seed invitation.Seed) keyset.Keyset {
	t.Helper()
	return invitation.StarterKeys(seed, "carol")
}

func invitationProof(t *testing.T, seed invitation.Seed, userName string) invitation.Proof {
	t.Helper()
	proof, err := invitation.GenerateProof(seed, userName)
	if err != nil {
		t.Fatalf("GenerateProof() error: %v", err)
	}
	return proof
}

// forkedAdmins builds a team with alice (founder) and bob both admin,
// then returns independent views for each so tests can make concurrent
// mutations and merge them.
func forkedAdmins(t *testing.T) (alice, bob *Team) {
	t.Helper()
	aliceTeam, _, clk := newTestTeam(t)
	bobCtx := testContext(t, "bob", "bob-laptop")
	if err := aliceTeam.AddMember(bobCtx.Member(), keyset.AdminRoleName); err != nil {
		t.Fatalf("AddMember() error: %v", err)
	}
	clk.Advance(time.Second)
	return aliceTeam, adopt(t, aliceTeam, bobCtx, clk)
}

// mergeBothWays cross-merges two views and checks they converge on
// the same head.
func mergeBothWays(t *testing.T, a, b *Team) {
	t.Helper()
	graphA, graphB := a.Graph(), b.Graph()
	if err := a.Merge(graphB); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if err := b.Merge(graphA); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if a.Head() != b.Head() {
		t.Fatalf("heads diverge after cross-merge: %s vs %s", a.Head(), b.Head())
	}
}

func TestConcurrentNonConflictingMutations(t *testing.T) {
	alice, bob := forkedAdmins(t)

	carolCtx := testContext(t, "carol", "carol-laptop")
	daveCtx := testContext(t, "dave", "dave-laptop")
	if err := alice.AddMember(carolCtx.Member()); err != nil {
		t.Fatalf("alice AddMember(carol) error: %v", err)
	}
	if err := bob.AddMember(daveCtx.Member()); err != nil {
		t.Fatalf("bob AddMember(dave) error: %v", err)
	}

	mergeBothWays(t, alice, bob)

	for _, view := range []*Team{alice, bob} {
		for _, userID := range []string{"alice", "bob", "carol", "dave"} {
			if _, ok := view.State().Member(userID); !ok {
				t.Fatalf("member %s missing after merge", userID)
			}
		}
	}
}

func TestMutualDemotionSeniorWins(t *testing.T) {
	alice, bob := forkedAdmins(t)

	// Concurrently, each admin demotes the other. Alice appeared on
	// the graph first, so her demotion stands and bob's is cancelled.
	if err := alice.RemoveMemberRole("bob", keyset.AdminRoleName); err != nil {
		t.Fatalf("alice demotion error: %v", err)
	}
	if err := bob.RemoveMemberRole("alice", keyset.AdminRoleName); err != nil {
		t.Fatalf("bob demotion error: %v", err)
	}

	mergeBothWays(t, alice, bob)

	for _, view := range []*Team{alice, bob} {
		state := view.State()
		if !state.IsAdmin("alice") {
			t.Fatal("senior admin lost the mutual demotion")
		}
		if state.IsAdmin("bob") {
			t.Fatal("junior admin survived the mutual demotion")
		}
		if _, ok := state.Member("bob"); !ok {
			t.Fatal("demotion removed bob from the team entirely")
		}
		adminGen, _ := state.ScopeGeneration(keyset.AdminScope())
		if adminGen != 1 {
			t.Fatalf("admin generation = %d, want 1", adminGen)
		}
	}
}

func TestMutualRemovalSeniorWins(t *testing.T) {
	alice, bob := forkedAdmins(t)

	if err := alice.Remove("bob"); err != nil {
		t.Fatalf("alice Remove(bob) error: %v", err)
	}
	if err := bob.Remove("alice"); err != nil {
		t.Fatalf("bob Remove(alice) error: %v", err)
	}

	mergeBothWays(t, alice, bob)

	for _, view := range []*Team{alice, bob} {
		state := view.State()
		if _, ok := state.Member("alice"); !ok {
			t.Fatal("senior admin was removed")
		}
		if _, ok := state.Member("bob"); ok {
			t.Fatal("junior admin survived mutual removal")
		}
		if !state.WasRemoved("bob") {
			t.Fatal("bob's removal not recorded")
		}
	}
}

func TestRemovalCascadesToTargetsActions(t *testing.T) {
	alice, bob := forkedAdmins(t)

	carolCtx := testContext(t, "carol", "carol-laptop")
	if err := alice.AddMember(carolCtx.Member()); err != nil {
		t.Fatalf("AddMember(carol) error: %v", err)
	}
	if err := bob.Merge(alice.Graph()); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	// Concurrently: alice removes bob, while bob removes carol. Bob's
	// removal is invalidated by his own removal, so carol stays.
	if err := alice.Remove("bob"); err != nil {
		t.Fatalf("alice Remove(bob) error: %v", err)
	}
	if err := bob.Remove("carol"); err != nil {
		t.Fatalf("bob Remove(carol) error: %v", err)
	}

	mergeBothWays(t, alice, bob)

	for _, view := range []*Team{alice, bob} {
		state := view.State()
		if _, ok := state.Member("bob"); ok {
			t.Fatal("bob survived removal")
		}
		if _, ok := state.Member("carol"); !ok {
			t.Fatal("carol was removed by a removed admin")
		}
		if state.WasRemoved("carol") {
			t.Fatal("carol recorded as removed")
		}
	}
}

func TestRemovedMembersKeyRotationSurvives(t *testing.T) {
	alice, bob := forkedAdmins(t)

	// Bob rotates his own keys concurrently with being demoted. The
	// demotion stands, but his key rotation is exempt from the
	// cascade: a demoted member still controls their own keys.
	if err := alice.RemoveMemberRole("bob", keyset.AdminRoleName); err != nil {
		t.Fatalf("demotion error: %v", err)
	}
	if err := bob.ChangeKeys(); err != nil {
		t.Fatalf("ChangeKeys() error: %v", err)
	}

	mergeBothWays(t, alice, bob)

	for _, view := range []*Team{alice, bob} {
		state := view.State()
		if state.IsAdmin("bob") {
			t.Fatal("demotion did not take effect")
		}
		member, ok := state.Member("bob")
		if !ok {
			t.Fatal("bob missing after demotion")
		}
		if member.Keys.Generation != 1 {
			t.Fatalf("bob's key generation = %d, want 1", member.Keys.Generation)
		}
	}
}

func TestCircularDemotionConvergesOnSeniority(t *testing.T) {
	aliceTeam, _, clk := newTestTeam(t)
	bobCtx := testContext(t, "bob", "bob-laptop")
	charlieCtx := testContext(t, "charlie", "charlie-laptop")
	if err := aliceTeam.AddMember(bobCtx.Member(), keyset.AdminRoleName); err != nil {
		t.Fatalf("AddMember(bob) error: %v", err)
	}
	if err := aliceTeam.AddMember(charlieCtx.Member(), keyset.AdminRoleName); err != nil {
		t.Fatalf("AddMember(charlie) error: %v", err)
	}
	clk.Advance(time.Second)
	bobTeam := adopt(t, aliceTeam, bobCtx, clk)
	charlieTeam := adopt(t, aliceTeam, charlieCtx, clk)

	// Concurrently: bob demotes charlie, charlie demotes alice, alice
	// demotes bob. Seniority (alice, bob, charlie by first appearance)
	// settles the cycle: charlie's reach up to the founder is
	// cancelled, alice's demotion of bob stands, and bob's demotion of
	// charlie falls with his own authority.
	if err := bobTeam.RemoveMemberRole("charlie", keyset.AdminRoleName); err != nil {
		t.Fatalf("bob demotion error: %v", err)
	}
	if err := charlieTeam.RemoveMemberRole("alice", keyset.AdminRoleName); err != nil {
		t.Fatalf("charlie demotion error: %v", err)
	}
	if err := aliceTeam.RemoveMemberRole("bob", keyset.AdminRoleName); err != nil {
		t.Fatalf("alice demotion error: %v", err)
	}

	views := []*Team{aliceTeam, bobTeam, charlieTeam}
	for round := 0; round < 2; round++ {
		for _, a := range views {
			for _, b := range views {
				if a == b {
					continue
				}
				if err := a.Merge(b.Graph()); err != nil {
					t.Fatalf("Merge() error: %v", err)
				}
			}
		}
	}

	head := aliceTeam.Head()
	for _, view := range views[1:] {
		if view.Head() != head {
			t.Fatalf("heads diverge after all-pairs merges: %s vs %s", view.Head(), head)
		}
	}
	for _, view := range views {
		state := view.State()
		if !state.IsAdmin("alice") {
			t.Fatal("founder lost admin to a junior's concurrent demotion")
		}
		if state.IsAdmin("bob") {
			t.Fatal("bob kept admin despite the founder's demotion")
		}
		if !state.IsAdmin("charlie") {
			t.Fatal("charlie demoted by an admin who concurrently lost authority")
		}
	}
}

func TestConcurrentAdmissionsOfSameInviteeConverge(t *testing.T) {
	alice, bob := forkedAdmins(t)

	seed, err := alice.Invite("", 1, 0)
	if err != nil {
		t.Fatalf("Invite() error: %v", err)
	}
	if err := bob.Merge(alice.Graph()); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	carolKeys := invitationStarter(t, seed)
	proof := invitationProof(t, seed, "carol")

	// Both admins admit the same invitee on divergent branches. After
	// the merge, carol is a member exactly once and the single use is
	// consumed exactly once.
	if err := alice.Admit(proof, carolKeys.Public()); err != nil {
		t.Fatalf("alice Admit() error: %v", err)
	}
	if err := bob.Admit(proof, carolKeys.Public()); err != nil {
		t.Fatalf("bob Admit() error: %v", err)
	}

	mergeBothWays(t, alice, bob)

	for _, view := range []*Team{alice, bob} {
		state := view.State()
		count := 0
		for _, m := range state.Members {
			if m.UserID == "carol" {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("carol appears %d times, want 1", count)
		}
		for _, record := range state.Invitations {
			if record.RemainingUses != 0 {
				t.Fatalf("RemainingUses = %d, want 0", record.RemainingUses)
			}
			if len(record.Admitted) != 1 {
				t.Fatalf("Admitted = %v, want one entry", record.Admitted)
			}
		}
	}
}

func TestIndependentRemovalsOfSameTarget(t *testing.T) {
	alice, bob := forkedAdmins(t)

	carolCtx := testContext(t, "carol", "carol-laptop")
	if err := alice.AddMember(carolCtx.Member()); err != nil {
		t.Fatalf("AddMember(carol) error: %v", err)
	}
	if err := bob.Merge(alice.Graph()); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	// Both admins remove carol concurrently; the second removal in
	// sequence order is an idempotent no-op.
	if err := alice.Remove("carol"); err != nil {
		t.Fatalf("alice Remove(carol) error: %v", err)
	}
	if err := bob.Remove("carol"); err != nil {
		t.Fatalf("bob Remove(carol) error: %v", err)
	}

	mergeBothWays(t, alice, bob)

	for _, view := range []*Team{alice, bob} {
		state := view.State()
		if _, ok := state.Member("carol"); ok {
			t.Fatal("carol survived both removals")
		}
		count := 0
		for _, m := range state.RemovedMembers {
			if m.UserID == "carol" {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("carol recorded as removed %d times, want 1", count)
		}
	}
}
