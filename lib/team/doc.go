// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package team turns the signed graph into authority. It defines the
// closed set of membership actions, the reducer that folds a
// linearized sequence of them into a team state, the strong-remove
// resolver that settles concurrent removals and demotions by
// seniority, and the Team facade that application code talks to.
//
// The reducer is a pure function: every peer holding the same links
// computes the same state. Links that fail authorization or violate
// an invariant are skipped with a warning rather than aborting the
// reduction — a misbehaving peer can waste bytes on the graph but
// cannot wedge anyone else's replay.
package team
