// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto wraps the primitives the rest of Quorate builds on:
// BLAKE3 keyed hashing with domain separation, Ed25519 detached
// signatures, NaCl anonymous sealed boxes for asymmetric encryption,
// and XChaCha20-Poly1305 for symmetric AEAD.
//
// Domain separation is mandatory: every hash in the system is
// computed under a keyed domain so a link hash can never collide with
// an invitation id or a session key, even for identical input bytes.
//
// All key material here is raw bytes. Scoped, generational key
// bundles live one layer up in lib/keyset.
package crypto
