// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/quorate/quorate/lib/clock"
	"github.com/quorate/quorate/lib/connection"
	"github.com/quorate/quorate/lib/invitation"
	"github.com/quorate/quorate/lib/team"
)

// ErrShareExists is returned when registering a share id twice.
var ErrShareExists = errors.New("share already registered")

// Share is a runtime handle the coordinator holds for one team.
type Share struct {
	ID          string
	Team        *team.Team
	DocumentIDs []string

	// context is the identity used on this share's connections. For a
	// share being joined by invitation it carries the seed-derived
	// starter keys until admission completes.
	context team.Context

	// seed is non-empty while the share is joined by invitation and
	// no team has been received yet.
	seed invitation.Seed
}

// PeerMessage is an outbound wire message tagged with its share and
// destination peer, ready for the transport adapter.
type PeerMessage struct {
	ShareID string
	PeerID  string
	Message connection.Message
}

type connKey struct {
	ShareID string
	PeerID  string
}

// Config configures a Coordinator.
type Config struct {
	// Context is the local identity used on every share's connections.
	Context team.Context

	// Store persists share records. Nil disables persistence.
	Store Store

	Clock  clock.Clock
	Logger *slog.Logger

	// OnEvent, if set, observes every connection event with its share
	// and peer. Called from coordinator goroutines; must not block.
	OnEvent func(shareID, peerID string, event connection.Event)
}

// Coordinator owns a set of shares and multiplexes their connections
// over one transport. It is a per-process object with explicit
// construction and Close; it holds no global state.
type Coordinator struct {
	cfg    Config
	clk    clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	shares   map[string]*Share
	conns    map[connKey]*connection.Connection
	buffered map[connKey][]connection.Message

	outgoing  chan PeerMessage
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewCoordinator builds a coordinator for the given local identity.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		clk:      cfg.Clock,
		logger:   cfg.Logger,
		shares:   map[string]*Share{},
		conns:    map[connKey]*connection.Connection{},
		buffered: map[connKey][]connection.Message{},
		outgoing: make(chan PeerMessage, 128),
		done:     make(chan struct{}),
	}
}

// Outgoing is the stream of wire messages the transport must deliver.
func (c *Coordinator) Outgoing() <-chan PeerMessage { return c.outgoing }

// AddShare registers a team the local user is already a member of and
// persists it.
func (c *Coordinator) AddShare(ctx context.Context, shareID string, t *team.Team, documentIDs ...string) error {
	c.mu.Lock()
	if _, exists := c.shares[shareID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("adding %s: %w", shareID, ErrShareExists)
	}
	c.shares[shareID] = &Share{
		ID:          shareID,
		Team:        t,
		DocumentIDs: documentIDs,
		context:     c.cfg.Context,
	}
	c.mu.Unlock()
	return c.Persist(ctx, shareID)
}

// JoinShare registers a share the local user holds an invitation to.
// Connections for it run the invitee side of the protocol until a
// peer admits us; the received team is then attached to the share and
// persisted.
func (c *Coordinator) JoinShare(shareID string, seed invitation.Seed) error {
	starterContext := c.cfg.Context
	starterContext.UserKeys = invitation.StarterKeys(seed, starterContext.UserID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.shares[shareID]; exists {
		return fmt.Errorf("joining %s: %w", shareID, ErrShareExists)
	}
	c.shares[shareID] = &Share{
		ID:      shareID,
		context: starterContext,
		seed:    seed,
	}
	return nil
}

// LoadShares restores every share from the store. The graphs are
// re-validated and re-reduced on load.
func (c *Coordinator) LoadShares(ctx context.Context) error {
	if c.cfg.Store == nil {
		return nil
	}
	ids, err := c.cfg.Store.List(ctx)
	if err != nil {
		return err
	}
	for _, shareID := range ids {
		record, err := c.cfg.Store.Load(ctx, shareID)
		if err != nil {
			return err
		}
		t, err := team.Load(record.Graph, c.cfg.Context, c.clk, c.logger)
		if err != nil {
			return fmt.Errorf("restoring %s: %w", shareID, err)
		}
		c.mu.Lock()
		c.shares[shareID] = &Share{
			ID:          shareID,
			Team:        t,
			DocumentIDs: record.DocumentIDs,
			context:     c.cfg.Context,
		}
		c.mu.Unlock()
	}
	return nil
}

// RemoveShare stops the share's connections, drops it, and deletes
// its persisted record.
func (c *Coordinator) RemoveShare(ctx context.Context, shareID string) error {
	c.mu.Lock()
	delete(c.shares, shareID)
	var stopping []*connection.Connection
	for key, conn := range c.conns {
		if key.ShareID == shareID {
			stopping = append(stopping, conn)
			delete(c.conns, key)
		}
	}
	for key := range c.buffered {
		if key.ShareID == shareID {
			delete(c.buffered, key)
		}
	}
	c.mu.Unlock()

	for _, conn := range stopping {
		conn.Stop()
	}
	if c.cfg.Store == nil {
		return nil
	}
	return c.cfg.Store.Delete(ctx, shareID)
}

// ShareTeam returns the team attached to a share, if any.
func (c *Coordinator) ShareTeam(shareID string) (*team.Team, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.shares[shareID]
	if !ok || s.Team == nil {
		return nil, false
	}
	return s.Team, true
}

// Shares lists the registered share ids, sorted.
func (c *Coordinator) Shares() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.shares))
	for id := range c.shares {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PeerCandidate reacts to the transport reporting a new peer: one
// connection per known share is started optimistically. At most one
// will complete; the rest fail their handshakes.
func (c *Coordinator) PeerCandidate(peerID string) {
	c.mu.Lock()
	var pending []*Share
	for _, s := range c.shares {
		key := connKey{ShareID: s.ID, PeerID: peerID}
		if _, exists := c.conns[key]; !exists {
			pending = append(pending, s)
		}
	}
	c.mu.Unlock()

	for _, s := range pending {
		if err := c.startConnection(s, peerID); err != nil {
			c.logger.Warn("starting connection",
				"share", s.ID, "peer", peerID, "error", err)
		}
	}
}

// Deliver routes an inbound wire message to its connection, or
// buffers it until that connection exists.
func (c *Coordinator) Deliver(shareID, peerID string, m connection.Message) {
	key := connKey{ShareID: shareID, PeerID: peerID}
	c.mu.Lock()
	conn, ok := c.conns[key]
	if !ok {
		c.buffered[key] = append(c.buffered[key], m)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	conn.Deliver(m)
}

// ConnectionFor returns the connected connection to use for a peer.
// When the peer is reachable through several shares, the lowest share
// id wins.
func (c *Coordinator) ConnectionFor(peerID string) (*connection.Connection, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var best *connection.Connection
	bestShare := ""
	for key, conn := range c.conns {
		if key.PeerID != peerID || conn.State() != connection.StateConnected {
			continue
		}
		if best == nil || key.ShareID < bestShare {
			best = conn
			bestShare = key.ShareID
		}
	}
	return best, bestShare, best != nil
}

// Persist writes the share's current graph and sealed keyring to the
// store. A share with no team yet is skipped.
func (c *Coordinator) Persist(ctx context.Context, shareID string) error {
	if c.cfg.Store == nil {
		return nil
	}
	c.mu.Lock()
	s, ok := c.shares[shareID]
	if !ok || s.Team == nil {
		c.mu.Unlock()
		return nil
	}
	t := s.Team
	documentIDs := append([]string(nil), s.DocumentIDs...)
	c.mu.Unlock()

	serialized, err := t.Save()
	if err != nil {
		return fmt.Errorf("persisting %s: %w", shareID, err)
	}
	sealed, err := SealKeyring(c.cfg.Context.DeviceKeys, t.Keyring())
	if err != nil {
		return fmt.Errorf("persisting %s: %w", shareID, err)
	}
	return c.cfg.Store.Save(ctx, Record{
		ShareID:       shareID,
		Graph:         serialized,
		SealedKeyring: sealed,
		DocumentIDs:   documentIDs,
	})
}

// Close stops every connection and waits for the pumps to drain.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	conns := make([]*connection.Connection, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()
	for _, conn := range conns {
		conn.Stop()
	}
	c.wg.Wait()
	return nil
}

func (c *Coordinator) startConnection(s *Share, peerID string) error {
	cfg := connection.Config{
		Context: s.context,
		Clock:   c.clk,
		Logger:  c.logger.With("share", s.ID, "peer", peerID),
	}
	c.mu.Lock()
	if s.Team != nil {
		cfg.Team = s.Team
	} else {
		cfg.InvitationSeed = s.seed
	}
	c.mu.Unlock()

	conn, err := connection.New(cfg)
	if err != nil {
		return err
	}
	key := connKey{ShareID: s.ID, PeerID: peerID}

	c.mu.Lock()
	if _, exists := c.conns[key]; exists {
		c.mu.Unlock()
		conn.Stop()
		return nil
	}
	c.conns[key] = conn
	backlog := c.buffered[key]
	delete(c.buffered, key)
	c.mu.Unlock()

	c.wg.Add(2)
	go c.pumpOutgoing(key, conn)
	go c.pumpEvents(key, conn)

	conn.Start()
	for _, m := range backlog {
		conn.Deliver(m)
	}
	return nil
}

// pumpOutgoing tags a connection's outbound messages with share and
// peer and hands them to the transport stream.
func (c *Coordinator) pumpOutgoing(key connKey, conn *connection.Connection) {
	defer c.wg.Done()
	forward := func(m connection.Message) {
		select {
		case c.outgoing <- PeerMessage{ShareID: key.ShareID, PeerID: key.PeerID, Message: m}:
		case <-c.done:
		}
	}
	for {
		select {
		case m := <-conn.Outgoing():
			forward(m)
		case <-conn.Done():
			for {
				select {
				case m := <-conn.Outgoing():
					forward(m)
				default:
					return
				}
			}
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) pumpEvents(key connKey, conn *connection.Connection) {
	defer c.wg.Done()
	for {
		select {
		case e := <-conn.Events():
			c.handleEvent(key, e)
		case <-conn.Done():
			for {
				select {
				case e := <-conn.Events():
					c.handleEvent(key, e)
				default:
					c.dropConnection(key, conn)
					return
				}
			}
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) handleEvent(key connKey, event connection.Event) {
	switch e := event.(type) {
	case connection.JoinedEvent:
		c.mu.Lock()
		if s, ok := c.shares[key.ShareID]; ok {
			s.Team = e.Team
			s.seed = ""
			s.context = e.Team.Context()
		}
		c.mu.Unlock()
		if err := c.Persist(context.Background(), key.ShareID); err != nil {
			c.logger.Warn("persisting joined share", "share", key.ShareID, "error", err)
		}
	case connection.UpdatedEvent:
		if err := c.Persist(context.Background(), key.ShareID); err != nil {
			c.logger.Warn("persisting share", "share", key.ShareID, "error", err)
		}
	}
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(key.ShareID, key.PeerID, event)
	}
}

// dropConnection forgets a terminated connection so a later peer
// candidate can start a fresh one.
func (c *Coordinator) dropConnection(key connKey, conn *connection.Connection) {
	c.mu.Lock()
	if current, ok := c.conns[key]; ok && current == conn {
		delete(c.conns, key)
	}
	c.mu.Unlock()
}
