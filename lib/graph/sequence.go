// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bytes"
	"fmt"

	"github.com/quorate/quorate/lib/crypto"
)

// Resolver reconciles the two concurrent branches of a merge. It
// receives the already-linearized history up to the branches' common
// ancestor (inclusive) and the two branches with that history
// removed, and returns the links that survive, in order. A resolver
// must be a pure function of its inputs: every peer runs it on the
// same inputs and must get the same output.
type Resolver func(ancestry, branchA, branchB []*Link) []*Link

// Sequence deterministically linearizes the graph. Single-parent
// links follow their parent; at each merge link the two branches are
// reconciled back to their common ancestor by the resolver. A nil
// resolver concatenates the branches in canonical order, dropping
// nothing.
//
// The returned sequence contains action links and the root; merge
// links, having no payload, are omitted.
func (g *Graph) Sequence(resolve Resolver) ([]*Link, error) {
	if resolve == nil {
		resolve = defaultResolver
	}
	memo := map[crypto.Hash][]*Link{}

	var sequence func(h crypto.Hash) ([]*Link, error)
	sequence = func(h crypto.Hash) ([]*Link, error) {
		if cached, ok := memo[h]; ok {
			return cached, nil
		}
		link, ok := g.Links[h]
		if !ok {
			return nil, fmt.Errorf("linearizing at %s: %w", h, ErrDanglingParent)
		}

		var result []*Link
		switch len(link.Body.Prev) {
		case 0:
			result = []*Link{link}
		case 1:
			parent, err := sequence(link.Body.Prev[0])
			if err != nil {
				return nil, err
			}
			result = appendLink(parent, link)
		case 2:
			a, b := link.Body.Prev[0], link.Body.Prev[1]
			ancestor, err := g.commonAncestor(a, b)
			if err != nil {
				return nil, err
			}
			ancestry, err := sequence(ancestor)
			if err != nil {
				return nil, err
			}
			seqA, err := sequence(a)
			if err != nil {
				return nil, err
			}
			seqB, err := sequence(b)
			if err != nil {
				return nil, err
			}
			branchA := subtract(seqA, ancestry)
			branchB := subtract(seqB, ancestry)
			merged := resolve(ancestry, branchA, branchB)
			result = appendLink(concatUnique(ancestry, merged), link)
		default:
			return nil, fmt.Errorf("link %s has %d parents", h, len(link.Body.Prev))
		}
		memo[h] = result
		return result, nil
	}

	full, err := sequence(g.Head)
	if err != nil {
		return nil, err
	}

	// Merge links exist only to join branches; the reducer never
	// sees them.
	actions := make([]*Link, 0, len(full))
	for _, l := range full {
		if !l.IsMerge() {
			actions = append(actions, l)
		}
	}
	return actions, nil
}

// defaultResolver keeps both branches intact, ordering them by their
// first link's hash so both peers concatenate the same way.
func defaultResolver(_, branchA, branchB []*Link) []*Link {
	if len(branchA) == 0 {
		return branchB
	}
	if len(branchB) == 0 {
		return branchA
	}
	first, second := branchA, branchB
	a, b := branchA[0].Hash(), branchB[0].Hash()
	if bytes.Compare(b[:], a[:]) < 0 {
		first, second = branchB, branchA
	}
	return concatUnique(first, second)
}

// appendLink appends without mutating the (memoized) input slice.
func appendLink(seq []*Link, link *Link) []*Link {
	out := make([]*Link, 0, len(seq)+1)
	out = append(out, seq...)
	return append(out, link)
}

// subtract returns seq with every link present in remove filtered
// out, preserving order.
func subtract(seq, remove []*Link) []*Link {
	removed := make(map[crypto.Hash]bool, len(remove))
	for _, l := range remove {
		removed[l.Hash()] = true
	}
	var out []*Link
	for _, l := range seq {
		if !removed[l.Hash()] {
			out = append(out, l)
		}
	}
	return out
}

// concatUnique concatenates sequences, dropping later duplicates.
// Criss-cross merges can leave the same link in both branches; it
// must appear in the linearization exactly once.
func concatUnique(sequences ...[]*Link) []*Link {
	seen := map[crypto.Hash]bool{}
	var out []*Link
	for _, seq := range sequences {
		for _, l := range seq {
			if seen[l.Hash()] {
				continue
			}
			seen[l.Hash()] = true
			out = append(out, l)
		}
	}
	return out
}
