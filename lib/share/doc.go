// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package share multiplexes many teams ("shares") over one transport.
//
// The Coordinator owns a set of shares and, for each peer candidate
// the transport reports, optimistically runs one connection per share;
// at most one reaches connected. Inbound messages that arrive before
// their connection exists are buffered by (share, peer). Outbound
// routing picks the lowest share id among connected connections for
// the peer.
//
// Persistence goes through the Store interface: for each share the
// serialized graph, the team keyring sealed with the local device's
// symmetric key, and the associated document ids. Two implementations
// are provided, an in-memory store for tests and a SQLite store.
package share
