// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyset defines scoped, generational key bundles. A keyset
// binds a signing keypair and an encryption keypair to a scope — the
// team itself, a role, a member, a device, a server, or an ephemeral
// identity — at a particular generation. Generations start at zero
// and increment on every rotation; rotation happens whenever a scope
// is compromised (a member removed, an admin demoted, a device
// retired).
//
// A Keyset carries secrets and never crosses a trust boundary in the
// clear; its PublicKeyset redaction is what goes on the graph.
package keyset
