// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package lockbox

import (
	"github.com/quorate/quorate/lib/keyset"
)

// VisibleScopes returns every scope reachable from start by following
// lockbox edges: a lockbox sealed to a scope makes its contents scope
// visible, and visibility is transitive. The start scope itself is
// not included. Order is deterministic breadth-first over the
// lockboxes as stored.
func VisibleScopes(lockboxes []Lockbox, start keyset.Scope) []keyset.Scope {
	seen := map[keyset.Scope]bool{start: true}
	frontier := []keyset.Scope{start}
	var visible []keyset.Scope
	for len(frontier) > 0 {
		scope := frontier[0]
		frontier = frontier[1:]
		for _, b := range lockboxes {
			if b.Recipient.Scope != scope || seen[b.ContentsScope] {
				continue
			}
			seen[b.ContentsScope] = true
			visible = append(visible, b.ContentsScope)
			frontier = append(frontier, b.ContentsScope)
		}
	}
	return visible
}

// VisibleKeys opens every lockbox reachable from the start keyset and
// returns the contained keysets with secrets, transitively: team keys
// unlocked by member keys unlocked by the device's own keys. Lockboxes
// that fail to open (sealed to an older generation of a rotated scope)
// are skipped. The start keyset itself is not included.
func VisibleKeys(lockboxes []Lockbox, start keyset.Keyset) []keyset.Keyset {
	opened := map[keyset.Scope]map[uint32]bool{}
	markOpened := func(k keyset.Keyset) {
		if opened[k.Scope] == nil {
			opened[k.Scope] = map[uint32]bool{}
		}
		opened[k.Scope][k.Generation] = true
	}
	markOpened(start)

	frontier := []keyset.Keyset{start}
	var visible []keyset.Keyset
	for len(frontier) > 0 {
		holder := frontier[0]
		frontier = frontier[1:]
		public := holder.BoxKeypair().Public
		for _, b := range lockboxes {
			if b.Recipient.Encryption != public {
				continue
			}
			if opened[b.ContentsScope] != nil && opened[b.ContentsScope][b.ContentsGeneration] {
				continue
			}
			contents, err := b.Open(holder)
			if err != nil {
				continue
			}
			markOpened(contents)
			visible = append(visible, contents)
			frontier = append(frontier, contents)
		}
	}
	return visible
}

// Latest returns the highest-generation keyset for scope among keys,
// or false if none covers the scope.
func Latest(keys []keyset.Keyset, scope keyset.Scope) (keyset.Keyset, bool) {
	var best keyset.Keyset
	found := false
	for _, k := range keys {
		if k.Scope != scope {
			continue
		}
		if !found || k.Generation > best.Generation {
			best = k
			found = true
		}
	}
	return best, found
}
