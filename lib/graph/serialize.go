// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/crypto"
)

// Shared zstd coders. Both are safe for concurrent use via
// EncodeAll/DecodeAll; allocating them once avoids repeated
// initialization of the compression tables.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("graph: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("graph: zstd decoder initialization failed: " + err.Error())
	}
}

// blob is the persisted form of a graph: links in hash order inside a
// deterministic CBOR envelope, zstd-compressed. Signed CBOR bodies
// compress well — they repeat key names and hex-adjacent structures.
type blob struct {
	Root  crypto.Hash `cbor:"root"`
	Head  crypto.Hash `cbor:"head"`
	Links []*Link     `cbor:"links"`
}

// Serialize encodes the graph for storage or the wire. The output is
// canonical: the same graph always serializes to the same bytes.
func (g *Graph) Serialize() ([]byte, error) {
	links := make([]*Link, 0, len(g.Links))
	for _, l := range g.Links {
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool {
		a, b := links[i].Hash(), links[j].Hash()
		return bytes.Compare(a[:], b[:]) < 0
	})
	encoded, err := codec.Marshal(blob{Root: g.Root, Head: g.Head, Links: links})
	if err != nil {
		return nil, fmt.Errorf("encoding graph: %w", err)
	}
	return zstdEncoder.EncodeAll(encoded, nil), nil
}

// Deserialize decodes a serialized graph and fully validates it.
// Hashes are recomputed from link bodies, never trusted from the
// blob, so any post-signature tampering surfaces here as
// ErrGraphTampered or ErrInvalidSignature.
func Deserialize(data []byte) (*Graph, error) {
	decoded, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing graph: %w", err)
	}
	var b blob
	if err := codec.Unmarshal(decoded, &b); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}
	g := &Graph{
		Root:  b.Root,
		Head:  b.Head,
		Links: make(map[crypto.Hash]*Link, len(b.Links)),
	}
	for _, link := range b.Links {
		g.Links[link.Hash()] = link
	}
	if err := g.Validate(); err != nil {
		// Any integrity failure in a loaded blob is tampering from
		// the loader's point of view; the cause is preserved.
		return nil, fmt.Errorf("loading graph: %w: %w", ErrGraphTampered, err)
	}
	return g, nil
}
