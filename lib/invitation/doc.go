// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package invitation implements seitan-style single-use invitations.
// An admin generates a random 16-character seed and shares it with
// the invitee out of band. Both sides derive the same artifacts from
// the seed: an invitation id, an ephemeral Ed25519 keypair, and
// starter keys. The admin posts the public half on the graph; the
// invitee proves possession of the seed by signing a claim with the
// derived secret key. No server is involved and the seed itself never
// goes over the wire.
package invitation
