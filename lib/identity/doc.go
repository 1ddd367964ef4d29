// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity implements the challenge-response proof of device
// identity used when two peers connect.
//
// A peer claims to be a specific user and device; the verifier issues
// a random single-use challenge naming that claim; the prover signs
// the challenge with the device signing key; the verifier checks the
// signature against the key the team has on record for that device.
// Binding the claimed identity into the challenge prevents a proof
// produced for one challenger from being replayed to another.
package identity
