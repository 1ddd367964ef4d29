// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"log/slog"
	"sort"

	"github.com/quorate/quorate/lib/graph"
	"github.com/quorate/quorate/lib/keyset"
)

// removal is one authority-revoking action found in a branch:
// REMOVE_MEMBER, REMOVE_MEMBER_ROLE(ADMIN), or REMOVE_DEVICE.
type removal struct {
	actor  string
	target string
	link   *graph.Link
}

// StrongRemove returns the resolver that settles concurrent branches
// with strong-remove semantics:
//
//  1. A removal or demotion whose target is senior to every principal
//     still removing them is cancelled, repeatedly until none is left.
//     Seniority is order of first appearance in the pre-merge
//     sequence, founder first. The mutual pair is the familiar case;
//     removal chains and cycles fold into the same rule, with the
//     most junior actor's reach-up dropping out first.
//  2. Every link authored by the target of a surviving removal from
//     the other branch is dropped, transitively — a removed admin's
//     whole concurrent branch of mutations goes with them. Their own
//     CHANGE_MEMBER_KEYS and ADD_DEVICE survive: a demoted member is
//     still a member and keeps control of their own keys and devices.
//  3. Independent removals of the same target both survive; the
//     reducer treats the later one as a no-op.
//
// The surviving links are returned sorted by (timestamp, hash).
func StrongRemove(logger *slog.Logger) graph.Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ancestry, branchA, branchB []*graph.Link) []*graph.Link {
		rank := seniorityRank(ancestry)
		survivorsA, survivorsB := resolveBranches(branchA, branchB, rank, logger)

		merged := append(append([]*graph.Link(nil), survivorsA...), survivorsB...)
		sort.Slice(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })
		return merged
	}
}

// seniorityRank maps each principal to its order of first appearance
// in the pre-merge sequence. The founder (root author) has rank 0.
// Principals that never appear before the merge rank junior to
// everyone who did.
func seniorityRank(ancestry []*graph.Link) map[string]int {
	rank := map[string]int{}
	note := func(userID string) {
		if userID == "" {
			return
		}
		if _, seen := rank[userID]; !seen {
			rank[userID] = len(rank)
		}
	}
	for _, link := range ancestry {
		note(link.Body.Author.UserID)
		payload, err := decodePayload(link)
		if err != nil {
			continue
		}
		switch p := payload.(type) {
		case *AddMemberPayload:
			note(p.Member.UserID)
		case *AdmitPayload:
			note(p.Member.UserID)
		}
	}
	return rank
}

func resolveBranches(branchA, branchB []*graph.Link, rank map[string]int, logger *slog.Logger) (survivorsA, survivorsB []*graph.Link) {
	removalsA := findRemovals(branchA)
	removalsB := findRemovals(branchB)

	// Cancel removals that reach up the seniority order: an action
	// whose target outranks every principal still removing them is
	// dropped before any cascade runs. Each cancellation shrinks a
	// target's remover set, which can expose the next reach-up, so
	// the pass repeats until stable. Cancellation is monotone in the
	// cancelled set, so every peer lands on the same fixpoint.
	cancelled := map[*graph.Link]bool{}
	removals := append(append([]removal(nil), removalsA...), removalsB...)
	for changed := true; changed; {
		changed = false
		for _, r := range removals {
			if cancelled[r.link] || !outranksRemovers(r.target, removals, cancelled, rank) {
				continue
			}
			cancelled[r.link] = true
			changed = true
			logger.Debug("cancelling removal of senior principal",
				"actor", r.actor, "target", r.target,
				"hash", r.link.Hash().String())
		}
	}

	// Cascade to a fixpoint: drop everything authored by the target
	// of a surviving removal from the opposite branch. Drops are
	// recomputed from the cancellation set on every pass rather than
	// only accumulated — a cascaded-away removal stops invalidating
	// its own target, which can resurrect that target's links on the
	// next pass. The iteration cap bounds the oscillating case; each
	// pass is a pure function of the previous one, so every peer
	// lands on the same fixpoint.
	dropA := copyDrops(cancelled)
	dropB := copyDrops(cancelled)
	for i := 0; i <= len(branchA)+len(branchB); i++ {
		nextA := copyDrops(cancelled)
		nextB := copyDrops(cancelled)
		cascade(branchA, survivingTargets(removalsB, dropB), nextA)
		cascade(branchB, survivingTargets(removalsA, dropA), nextB)
		if sameDrops(dropA, nextA) && sameDrops(dropB, nextB) {
			break
		}
		dropA, dropB = nextA, nextB
	}

	return surviving(branchA, dropA), surviving(branchB, dropB)
}

func findRemovals(branch []*graph.Link) []removal {
	var removals []removal
	for _, link := range branch {
		payload, err := decodePayload(link)
		if err != nil {
			continue
		}
		switch p := payload.(type) {
		case *RemoveMemberPayload:
			removals = append(removals, removal{actor: link.Body.Author.UserID, target: p.UserID, link: link})
		case *MemberRolePayload:
			if link.Body.Type == ActionRemoveMemberRole && p.RoleName == keyset.AdminRoleName {
				removals = append(removals, removal{actor: link.Body.Author.UserID, target: p.UserID, link: link})
			}
		case *RemoveDevicePayload:
			removals = append(removals, removal{actor: link.Body.Author.UserID, target: p.UserID, link: link})
		}
	}
	return removals
}

// senior returns whichever of a and b appeared on the graph first.
// Unknown principals are junior to known ones; a tie between two
// unknowns breaks lexically so every peer agrees.
func senior(a, b string, rank map[string]int) string {
	ra, okA := rank[a]
	rb, okB := rank[b]
	switch {
	case okA && okB:
		if ra <= rb {
			return a
		}
		return b
	case okA:
		return a
	case okB:
		return b
	case a <= b:
		return a
	default:
		return b
	}
}

// outranksRemovers reports whether target is senior to the actor of
// every surviving removal against them.
func outranksRemovers(target string, removals []removal, cancelled map[*graph.Link]bool, rank map[string]int) bool {
	for _, r := range removals {
		if r.target != target || cancelled[r.link] {
			continue
		}
		if senior(r.actor, target, rank) == r.actor {
			return false
		}
	}
	return true
}

func survivingTargets(removals []removal, dropped map[*graph.Link]bool) map[string]bool {
	targets := map[string]bool{}
	for _, r := range removals {
		if !dropped[r.link] {
			targets[r.target] = true
		}
	}
	return targets
}

// cascade marks for dropping every link in branch authored by one of
// the targeted principals, except the principal's own key rotations
// and device additions.
func cascade(branch []*graph.Link, targets map[string]bool, drop map[*graph.Link]bool) {
	for _, link := range branch {
		if drop[link] || !targets[link.Body.Author.UserID] {
			continue
		}
		if keptForTarget(link) {
			continue
		}
		drop[link] = true
	}
}

func copyDrops(src map[*graph.Link]bool) map[*graph.Link]bool {
	out := make(map[*graph.Link]bool, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func sameDrops(a, b map[*graph.Link]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// keptForTarget reports whether a link survives even when its author
// has been concurrently removed or demoted: their own key rotations
// and device additions remain valid.
func keptForTarget(link *graph.Link) bool {
	switch link.Body.Type {
	case ActionChangeMemberKeys, ActionAddDevice:
		return true
	}
	return false
}

func surviving(branch []*graph.Link, dropped map[*graph.Link]bool) []*graph.Link {
	var out []*graph.Link
	for _, link := range branch {
		if !dropped[link] {
			out = append(out, link)
		}
	}
	return out
}
