// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/crypto"
)

var (
	// ErrDanglingParent means a link references a parent hash that is
	// not present in the graph.
	ErrDanglingParent = errors.New("link references missing parent")

	// ErrDifferentRoots means two graphs being merged do not descend
	// from the same root link.
	ErrDifferentRoots = errors.New("graphs have different roots")
)

// SignContext identifies the local author: the user, the device, and
// the device's signing keypair. Every appended link is signed with
// these keys.
type SignContext struct {
	UserID     string
	DeviceID   string
	DeviceKeys crypto.SignKeypair
}

func (c SignContext) author() Author {
	return Author{UserID: c.UserID, DeviceID: c.DeviceID}
}

// Graph is the append-only DAG. Links are stored in a
// content-addressed table and navigated by hash; Root and Head are
// entries into the table. The zero value is not usable — graphs are
// made by Create, Merge, or Deserialize.
type Graph struct {
	Root  crypto.Hash
	Head  crypto.Hash
	Links map[crypto.Hash]*Link
}

// Create starts a new graph with a signed root link.
func Create(payload any, ctx SignContext, now time.Time) (*Graph, error) {
	root, err := makeLink(TypeRoot, payload, nil, ctx, now)
	if err != nil {
		return nil, fmt.Errorf("creating root link: %w", err)
	}
	g := &Graph{
		Root:  root.Hash(),
		Head:  root.Hash(),
		Links: map[crypto.Hash]*Link{root.Hash(): root},
	}
	return g, nil
}

// Append adds a signed action link on top of the current head and
// advances the head to it. Returns the new link.
func (g *Graph) Append(actionType string, payload any, ctx SignContext, now time.Time) (*Link, error) {
	link, err := makeLink(actionType, payload, []crypto.Hash{g.Head}, ctx, now)
	if err != nil {
		return nil, fmt.Errorf("appending %s link: %w", actionType, err)
	}
	g.Links[link.Hash()] = link
	g.Head = link.Hash()
	return link, nil
}

func makeLink(linkType string, payload any, prev []crypto.Hash, ctx SignContext, now time.Time) (*Link, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	link := &Link{
		Body: Body{
			Type:      linkType,
			Payload:   encoded,
			Prev:      prev,
			Timestamp: now.UnixMilli(),
			Author:    ctx.author(),
		},
	}
	hash := link.Hash()
	link.Signature = ctx.DeviceKeys.Sign(hash[:])
	link.SignedBy = ctx.DeviceKeys.Public
	return link, nil
}

// Merge combines two graphs sharing a root. The result contains the
// union of both link tables. If the heads already agree, or one head
// is an ancestor of the other, no merge link is needed; otherwise a
// merge link with the two heads as sorted parents becomes the new
// head. Sorting the parents makes the merge link's hash — and
// therefore the merged graph — identical regardless of which side
// initiates.
func Merge(a, b *Graph) (*Graph, error) {
	if a.Root != b.Root {
		return nil, fmt.Errorf("merging %s with %s: %w", a.Root, b.Root, ErrDifferentRoots)
	}
	merged := &Graph{
		Root:  a.Root,
		Links: make(map[crypto.Hash]*Link, len(a.Links)+len(b.Links)),
	}
	for h, l := range a.Links {
		merged.Links[h] = l
	}
	for h, l := range b.Links {
		merged.Links[h] = l
	}

	switch {
	case a.Head == b.Head:
		merged.Head = a.Head
	case merged.isAncestor(a.Head, b.Head):
		merged.Head = b.Head
	case merged.isAncestor(b.Head, a.Head):
		merged.Head = a.Head
	default:
		parents := []crypto.Hash{a.Head, b.Head}
		if bytes.Compare(parents[1][:], parents[0][:]) < 0 {
			parents[0], parents[1] = parents[1], parents[0]
		}
		mergeLink := &Link{Body: Body{Type: TypeMerge, Prev: parents}}
		merged.Links[mergeLink.Hash()] = mergeLink
		merged.Head = mergeLink.Hash()
	}
	return merged, nil
}

// Clone returns a graph sharing the (immutable) links but with an
// independent link table, so appends to the clone do not affect the
// original.
func (g *Graph) Clone() *Graph {
	links := make(map[crypto.Hash]*Link, len(g.Links))
	for h, l := range g.Links {
		links[h] = l
	}
	return &Graph{Root: g.Root, Head: g.Head, Links: links}
}

// Has reports whether the graph contains a link with the given hash.
func (g *Graph) Has(h crypto.Hash) bool {
	_, ok := g.Links[h]
	return ok
}

// Hashes returns every link hash in the graph, sorted. Used by the
// sync protocol to compute which links a peer is missing.
func (g *Graph) Hashes() []crypto.Hash {
	hashes := make([]crypto.Hash, 0, len(g.Links))
	for h := range g.Links {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})
	return hashes
}

// ancestorSet returns the hashes of start and all its ancestors.
func (g *Graph) ancestorSet(start crypto.Hash) map[crypto.Hash]bool {
	seen := map[crypto.Hash]bool{}
	stack := []crypto.Hash{start}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			continue
		}
		seen[h] = true
		if link, ok := g.Links[h]; ok {
			stack = append(stack, link.Body.Prev...)
		}
	}
	return seen
}

// isAncestor reports whether ancestor is older (an ancestor of, or
// equal to) descendant.
func (g *Graph) isAncestor(ancestor, descendant crypto.Hash) bool {
	return g.ancestorSet(descendant)[ancestor]
}

// depth returns the longest path length from the root to each link.
// Used to pick the nearest common ancestor deterministically.
func (g *Graph) depths() map[crypto.Hash]int {
	depths := make(map[crypto.Hash]int, len(g.Links))
	var walk func(h crypto.Hash) int
	walk = func(h crypto.Hash) int {
		if d, ok := depths[h]; ok {
			return d
		}
		link := g.Links[h]
		d := 0
		for _, p := range link.Body.Prev {
			if pd := walk(p) + 1; pd > d {
				d = pd
			}
		}
		depths[h] = d
		return d
	}
	for h := range g.Links {
		walk(h)
	}
	return depths
}

// commonAncestor returns the deepest link that is an ancestor of both
// a and b, breaking depth ties by hash so every peer picks the same
// one.
func (g *Graph) commonAncestor(a, b crypto.Hash) (crypto.Hash, error) {
	ancA := g.ancestorSet(a)
	ancB := g.ancestorSet(b)
	depths := g.depths()

	var best crypto.Hash
	bestDepth := -1
	found := false
	for h := range ancA {
		if !ancB[h] {
			continue
		}
		d := depths[h]
		if d > bestDepth || (d == bestDepth && bytes.Compare(h[:], best[:]) < 0) {
			best = h
			bestDepth = d
			found = true
		}
	}
	if !found {
		return crypto.Hash{}, fmt.Errorf("no common ancestor of %s and %s: %w", a, b, ErrDifferentRoots)
	}
	return best, nil
}
