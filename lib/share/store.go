// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/crypto"
	"github.com/quorate/quorate/lib/keyset"
)

// ErrShareNotFound is returned by Load for an unknown share id.
var ErrShareNotFound = errors.New("share not found")

// keyringAAD binds sealed keyrings to their purpose so a ciphertext
// cannot be replayed as some other device-encrypted blob.
const keyringAAD = "quorate.share.keyring.v1"

// Record is the persisted form of one share.
type Record struct {
	ShareID string `cbor:"shareId"`

	// Graph is the serialized team graph (see graph.Serialize).
	Graph []byte `cbor:"graph"`

	// SealedKeyring is the team keyring encrypted with the local
	// device's symmetric key. It lets a device recover scope secrets
	// without replaying lockbox resolution at startup.
	SealedKeyring []byte `cbor:"sealedKeyring"`

	// DocumentIDs lists the documents this share grants access to.
	DocumentIDs []string `cbor:"documentIds,omitempty"`
}

// Store persists share records.
type Store interface {
	Save(ctx context.Context, record Record) error
	Load(ctx context.Context, shareID string) (Record, error)
	Delete(ctx context.Context, shareID string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// SealKeyring encrypts a keyring with the device keyset's symmetric
// key for storage in a Record.
func SealKeyring(deviceKeys keyset.Keyset, keyring []keyset.Keyset) ([]byte, error) {
	plaintext, err := codec.Marshal(keyring)
	if err != nil {
		return nil, fmt.Errorf("encoding keyring: %w", err)
	}
	sealed, err := crypto.SealSymmetric(deviceKeys.SymmetricKey(), plaintext, []byte(keyringAAD))
	if err != nil {
		return nil, fmt.Errorf("sealing keyring: %w", err)
	}
	return sealed, nil
}

// OpenKeyring decrypts a Record's sealed keyring with the device
// keyset that sealed it.
func OpenKeyring(deviceKeys keyset.Keyset, sealed []byte) ([]keyset.Keyset, error) {
	plaintext, err := crypto.OpenSymmetric(deviceKeys.SymmetricKey(), sealed, []byte(keyringAAD))
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	var keyring []keyset.Keyset
	if err := codec.Unmarshal(plaintext, &keyring); err != nil {
		return nil, fmt.Errorf("decoding keyring: %w", err)
	}
	return keyring, nil
}

// MemoryStore is an in-process Store. Used in tests and by callers
// that manage persistence elsewhere.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ShareID] = cloneRecord(record)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, shareID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[shareID]
	if !ok {
		return Record{}, fmt.Errorf("loading %s: %w", shareID, ErrShareNotFound)
	}
	return cloneRecord(record), nil
}

func (s *MemoryStore) Delete(_ context.Context, shareID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, shareID)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneRecord(record Record) Record {
	record.Graph = append([]byte(nil), record.Graph...)
	record.SealedKeyring = append([]byte(nil), record.SealedKeyring...)
	record.DocumentIDs = append([]string(nil), record.DocumentIDs...)
	return record
}
