// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection implements the pairwise peer protocol: mutual
// identity verification (optionally consuming an invitation), graph
// synchronization, session-key negotiation, and live update exchange.
//
// A Connection is a state machine confined to one goroutine. The
// transport adapter feeds inbound wire messages through Deliver and
// drains outbound ones from Outgoing; the machine never touches the
// network itself. Messages carry a per-sender index and are released
// to the machine strictly in index order, so a reordering transport
// cannot confuse the handshake.
package connection
