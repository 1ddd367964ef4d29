// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for tests: channel
// operations with timeout safety valves so a broken test fails
// instead of hanging.
package testutil
