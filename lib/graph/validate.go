// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature means a link's signature does not verify
	// under its recorded signing key.
	ErrInvalidSignature = errors.New("link signature invalid")

	// ErrMultipleRoots means the graph contains more than one root
	// link, or a root that is not the recorded root.
	ErrMultipleRoots = errors.New("graph has multiple roots")

	// ErrGraphTampered means a link's content does not match its
	// content address, or the graph structure is inconsistent.
	ErrGraphTampered = errors.New("graph tampered")
)

// Validate checks the structural integrity of the whole graph: every
// link's hash matches its content, every signature verifies, every
// parent reference resolves, there is exactly one root, and the root
// is reachable from the head. It does not check authorization — that
// requires team state and happens in the reducer.
func (g *Graph) Validate() error {
	rootLink, ok := g.Links[g.Root]
	if !ok {
		return fmt.Errorf("root %s not in graph: %w", g.Root, ErrGraphTampered)
	}
	if !rootLink.IsRoot() || len(rootLink.Body.Prev) != 0 {
		return fmt.Errorf("link %s recorded as root is not a root link: %w", g.Root, ErrGraphTampered)
	}
	if _, ok := g.Links[g.Head]; !ok {
		return fmt.Errorf("head %s not in graph: %w", g.Head, ErrGraphTampered)
	}

	for stored, link := range g.Links {
		computed, err := hashBody(link.Body)
		if err != nil {
			return fmt.Errorf("hashing link %s: %w", stored, err)
		}
		if computed != stored {
			return fmt.Errorf("link stored as %s hashes to %s: %w", stored, computed, ErrGraphTampered)
		}

		for _, parent := range link.Body.Prev {
			if !g.Has(parent) {
				return fmt.Errorf("link %s: parent %s: %w", stored, parent, ErrDanglingParent)
			}
		}

		switch {
		case link.IsRoot():
			if stored != g.Root {
				return fmt.Errorf("second root %s: %w", stored, ErrMultipleRoots)
			}
		case link.IsMerge():
			if len(link.Body.Prev) != 2 {
				return fmt.Errorf("merge link %s has %d parents: %w", stored, len(link.Body.Prev), ErrGraphTampered)
			}
			if bytes.Compare(link.Body.Prev[0][:], link.Body.Prev[1][:]) >= 0 {
				return fmt.Errorf("merge link %s parents not sorted: %w", stored, ErrGraphTampered)
			}
		default:
			if len(link.Body.Prev) != 1 {
				return fmt.Errorf("action link %s has %d parents: %w", stored, len(link.Body.Prev), ErrGraphTampered)
			}
		}

		if !link.IsMerge() {
			if link.SignedBy.IsZero() {
				return fmt.Errorf("link %s has no signing key: %w", stored, ErrInvalidSignature)
			}
			if !link.SignedBy.Verify(stored[:], link.Signature) {
				return fmt.Errorf("link %s by %s/%s: %w", stored,
					link.Body.Author.UserID, link.Body.Author.DeviceID, ErrInvalidSignature)
			}
		}
	}

	if !g.isAncestor(g.Root, g.Head) {
		return fmt.Errorf("root %s not reachable from head %s: %w", g.Root, g.Head, ErrGraphTampered)
	}
	return nil
}
