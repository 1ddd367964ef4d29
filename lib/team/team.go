// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/quorate/quorate/lib/clock"
	"github.com/quorate/quorate/lib/codec"
	"github.com/quorate/quorate/lib/crypto"
	"github.com/quorate/quorate/lib/graph"
	"github.com/quorate/quorate/lib/keyset"
	"github.com/quorate/quorate/lib/lockbox"
)

// Context is the local identity a Team acts as: the user and the
// device, both with secrets. Everything the local process can decrypt
// flows from the device keys through the lockbox graph.
type Context struct {
	UserID     string
	UserKeys   keyset.Keyset
	DeviceID   string
	DeviceKeys keyset.Keyset
}

// NewContext generates fresh user and device keysets for a local
// identity.
func NewContext(userID, deviceID string) (Context, error) {
	userKeys, err := keyset.New(keyset.MemberScope(userID))
	if err != nil {
		return Context{}, fmt.Errorf("creating user keys: %w", err)
	}
	deviceKeys, err := keyset.New(keyset.DeviceScope(deviceID))
	if err != nil {
		return Context{}, fmt.Errorf("creating device keys: %w", err)
	}
	return Context{UserID: userID, UserKeys: userKeys, DeviceID: deviceID, DeviceKeys: deviceKeys}, nil
}

// Member returns the public membership record for this context.
func (c Context) Member() Member {
	return Member{UserID: c.UserID, Keys: c.UserKeys.Public(), Devices: []Device{c.Device()}}
}

// Device returns the public device record for this context.
func (c Context) Device() Device {
	return Device{UserID: c.UserID, DeviceID: c.DeviceID, Keys: c.DeviceKeys.Public()}
}

func (c Context) signContext() graph.SignContext {
	return graph.SignContext{
		UserID:     c.UserID,
		DeviceID:   c.DeviceID,
		DeviceKeys: c.DeviceKeys.SignKeypair(),
	}
}

// Team is the facade over a membership graph: the graph itself, the
// reduced state, and the local identity. Mutations append a signed
// link and re-reduce; reads are served from the current state.
// Mutations are serialized by an internal lock; the state value is
// immutable once published, so readers are never torn.
type Team struct {
	mu      sync.RWMutex
	chain   *graph.Graph
	state   *State
	context Context

	clk    clock.Clock
	logger *slog.Logger

	listenerMu sync.Mutex
	listeners  []func(crypto.Hash)
}

// New creates a team. The context's user becomes the founder and
// first admin; the initial lockbox graph delivers the new team and
// admin keys to the founder and the founder's keys to their device.
func New(teamName string, ctx Context, clk clock.Clock, logger *slog.Logger) (*Team, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	teamKeys, err := keyset.New(keyset.TeamScope())
	if err != nil {
		return nil, fmt.Errorf("creating team keys: %w", err)
	}
	adminKeys, err := keyset.New(keyset.AdminScope())
	if err != nil {
		return nil, fmt.Errorf("creating admin keys: %w", err)
	}

	boxes, err := sealAll(
		sealing{teamKeys, ctx.UserKeys.Public()},
		sealing{adminKeys, ctx.UserKeys.Public()},
		sealing{ctx.UserKeys, ctx.DeviceKeys.Public()},
	)
	if err != nil {
		return nil, err
	}

	founder := ctx.Member()
	founder.Roles = []string{keyset.AdminRoleName}
	chain, err := graph.Create(RootPayload{
		TeamName:  teamName,
		Founder:   founder,
		Lockboxes: boxes,
	}, ctx.signContext(), clk.Now())
	if err != nil {
		return nil, fmt.Errorf("creating team graph: %w", err)
	}

	t := &Team{chain: chain, context: ctx, clk: clk, logger: logger}
	if err := t.rereduce(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromGraph wraps an existing validated graph in a Team for the given
// local context. Used when adopting a graph received from a peer.
func FromGraph(g *graph.Graph, ctx Context, clk clock.Clock, logger *slog.Logger) (*Team, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	t := &Team{chain: g.Clone(), context: ctx, clk: clk, logger: logger}
	if err := t.rereduce(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load restores a team from its serialized graph.
func Load(data []byte, ctx Context, clk clock.Clock, logger *slog.Logger) (*Team, error) {
	g, err := graph.Deserialize(data)
	if err != nil {
		return nil, err
	}
	return FromGraph(g, ctx, clk, logger)
}

// rereduce recomputes state from the full linearized graph. Callers
// hold the write lock (or exclusive ownership during construction).
func (t *Team) rereduce() error {
	sequence, err := t.chain.Sequence(StrongRemove(t.logger))
	if err != nil {
		return fmt.Errorf("linearizing graph: %w", err)
	}
	state, err := Reduce(sequence, t.logger)
	if err != nil {
		return fmt.Errorf("reducing graph: %w", err)
	}
	t.state = state
	return nil
}

// append adds one signed action link and applies it to the current
// state incrementally.
func (t *Team) append(actionType string, payload any) error {
	t.mu.Lock()
	link, err := t.chain.Append(actionType, payload, t.context.signContext(), t.clk.Now())
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.state = t.state.Apply(link, t.logger)
	head := t.chain.Head
	t.mu.Unlock()

	t.notify(head)
	return nil
}

// Merge incorporates a peer's graph, re-resolves, and re-reduces.
// The incoming graph is validated before any of its links are
// adopted.
func (t *Team) Merge(other *graph.Graph) error {
	if err := other.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	merged, err := graph.Merge(t.chain, other)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	previousHead := t.chain.Head
	t.chain = merged
	if err := t.rereduce(); err != nil {
		t.mu.Unlock()
		return err
	}
	head := t.chain.Head
	t.mu.Unlock()

	if head != previousHead {
		t.notify(head)
	}
	return nil
}

// ID is the team's stable identity: the root link's hash.
func (t *Team) ID() crypto.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chain.Root
}

// Head returns the current graph head.
func (t *Team) Head() crypto.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chain.Head
}

// Name returns the current team name.
func (t *Team) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.TeamName
}

// State returns the current reduced state. The returned value is
// immutable: it is replaced, never modified, on each mutation.
func (t *Team) State() *State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Graph returns an independent copy of the underlying graph.
func (t *Team) Graph() *graph.Graph {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chain.Clone()
}

// Context returns the local identity this team acts as.
func (t *Team) Context() Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.context
}

// Save serializes the graph for storage.
func (t *Team) Save() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chain.Serialize()
}

// OnUpdated registers a listener called with the new head after every
// local mutation or merge that changes it. Listeners run on the
// mutating goroutine and must not call back into mutators.
func (t *Team) OnUpdated(listener func(head crypto.Hash)) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.listeners = append(t.listeners, listener)
}

func (t *Team) notify(head crypto.Hash) {
	t.listenerMu.Lock()
	listeners := append([]func(crypto.Hash){}, t.listeners...)
	t.listenerMu.Unlock()
	for _, l := range listeners {
		l(head)
	}
}

// SetTeamName renames the team. Admin only (enforced at reduction).
func (t *Team) SetTeamName(name string) error {
	return t.append(ActionSetTeamName, SetTeamNamePayload{TeamName: name})
}

// AddMessage appends an opaque message to the team log.
func (t *Team) AddMessage(message any) error {
	encoded, err := encodeMessage(message)
	if err != nil {
		return err
	}
	return t.append(ActionAddMessage, AddMessagePayload{Message: encoded})
}

type sealing struct {
	contents  keyset.Keyset
	recipient keyset.PublicKeyset
}

func sealAll(sealings ...sealing) ([]lockbox.Lockbox, error) {
	boxes := make([]lockbox.Lockbox, 0, len(sealings))
	for _, s := range sealings {
		b, err := lockbox.Seal(s.contents, s.recipient)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}

func encodeMessage(message any) (codec.RawMessage, error) {
	encoded, err := codec.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return codec.RawMessage(encoded), nil
}
