// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Quorate's canonical serialization: CBOR with
// Core Deterministic Encoding (RFC 8949 §4.2). Every link body, wire
// message, and persisted blob in the system is encoded through this
// package, so the same logical value always produces identical bytes.
// That property is load-bearing: link hashes and signatures are
// computed over encoded bytes, and two peers must derive the same
// hash for the same link.
package codec
