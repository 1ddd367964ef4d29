// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package lockbox implements sealed keyset delivery. A lockbox is an
// envelope whose contents are a keyset with secrets and whose
// recipient is the holder of another keyset's encryption key: team
// keys sealed to each member, role keys sealed to each role holder,
// member keys sealed to each of the member's devices.
//
// The set of lockboxes on a team forms a directed graph from
// recipient scopes to contents scopes. Walking that graph from a
// device's own keyset yields every secret the device is entitled to;
// key rotation replaces exactly the lockboxes on paths through the
// compromised scope.
package lockbox
