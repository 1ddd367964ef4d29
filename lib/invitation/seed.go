// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package invitation

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

// SeedLength is the fixed length of a normalized invitation seed.
const SeedLength = 16

// ErrMalformedSeed is returned when a seed cannot be normalized to
// SeedLength lowercase alphabetic characters.
var ErrMalformedSeed = errors.New("malformed invitation seed")

// Seed is a normalized invitation seed: exactly 16 lowercase
// alphabetic characters. Seeds are transmitted out of band (spoken,
// pasted into a chat, printed on paper), so normalization is forgiving
// about whitespace, case, and separator dashes.
type Seed string

const seedAlphabet = "abcdefghijklmnopqrstuvwxyz"

// NewSeed generates a random seed.
func NewSeed() (Seed, error) {
	letters := make([]byte, SeedLength)
	max := big.NewInt(int64(len(seedAlphabet)))
	for i := range letters {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating invitation seed: %w", err)
		}
		letters[i] = seedAlphabet[n.Int64()]
	}
	return Seed(letters), nil
}

// NormalizeSeed canonicalizes a human-entered seed: whitespace and
// dashes are stripped, letters are lowercased. The result must be
// exactly SeedLength alphabetic characters.
func NormalizeSeed(raw string) (Seed, error) {
	var cleaned strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r) || r == '-':
			continue
		case r >= 'a' && r <= 'z':
			cleaned.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			cleaned.WriteRune(unicode.ToLower(r))
		default:
			return "", fmt.Errorf("seed contains %q: %w", r, ErrMalformedSeed)
		}
	}
	if cleaned.Len() != SeedLength {
		return "", fmt.Errorf("seed has %d letters, want %d: %w", cleaned.Len(), SeedLength, ErrMalformedSeed)
	}
	return Seed(cleaned.String()), nil
}
