// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package graph implements the signed membership graph: an
// append-only, content-addressed DAG of links. Every link is hashed
// over its canonical CBOR body and signed by the authoring device, so
// any modification after the fact is detectable by every peer. Two
// peers that have been apart merge their graphs by adding a merge
// link over both heads; merging is commutative, and the deterministic
// linearization in Sequence guarantees that every peer that holds the
// same links derives the same order — and therefore, one layer up,
// the same team state.
package graph
