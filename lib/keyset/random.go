// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package keyset

import (
	"crypto/rand"

	"github.com/quorate/quorate/lib/crypto"
)

func randomHash(h *crypto.Hash) (int, error) {
	return rand.Read(h[:])
}
