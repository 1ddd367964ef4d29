// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package share_test

import (
	"context"
	"testing"
	"time"

	"github.com/quorate/quorate/lib/clock"
	"github.com/quorate/quorate/lib/connection"
	"github.com/quorate/quorate/lib/share"
	"github.com/quorate/quorate/lib/team"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const waitTimeout = 5 * time.Second

type coordEvent struct {
	shareID string
	peerID  string
	event   connection.Event
}

func testContext(t *testing.T, userID, deviceID string) team.Context {
	t.Helper()
	ctx, err := team.NewContext(userID, deviceID)
	if err != nil {
		t.Fatalf("NewContext(%s) error: %v", userID, err)
	}
	return ctx
}

// newSharedTeam founds a team as alice and returns bob's copy of it
// alongside alice's.
func newSharedTeam(t *testing.T, name string, aliceCtx, bobCtx team.Context, clk clock.Clock) (*team.Team, *team.Team) {
	t.Helper()
	alice, err := team.New(name, aliceCtx, clk, testLogger())
	if err != nil {
		t.Fatalf("New(%s) error: %v", name, err)
	}
	if err := alice.AddMember(bobCtx.Member()); err != nil {
		t.Fatalf("AddMember(bob) error: %v", err)
	}
	bob, err := team.FromGraph(alice.Graph(), bobCtx, clk, testLogger())
	if err != nil {
		t.Fatalf("FromGraph() error: %v", err)
	}
	return alice, bob
}

func newCoordinator(t *testing.T, ctx team.Context, store share.Store, clk clock.Clock) (*share.Coordinator, chan coordEvent) {
	t.Helper()
	events := make(chan coordEvent, 256)
	c := share.NewCoordinator(share.Config{
		Context: ctx,
		Store:   store,
		Clock:   clk,
		Logger:  testLogger(),
		OnEvent: func(shareID, peerID string, event connection.Event) {
			events <- coordEvent{shareID: shareID, peerID: peerID, event: event}
		},
	})
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return c, events
}

// bridge wires two coordinators' transport streams together.
func bridge(t *testing.T, a *share.Coordinator, aID string, b *share.Coordinator, bID string) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	forward := func(src *share.Coordinator, srcID string, dst *share.Coordinator) {
		for {
			select {
			case pm := <-src.Outgoing():
				dst.Deliver(pm.ShareID, srcID, pm.Message)
			case <-done:
				return
			}
		}
	}
	go forward(a, aID, b)
	go forward(b, bID, a)
}

// waitConnections consumes events until the wanted number of
// connections reached connected.
func waitConnections(t *testing.T, events <-chan coordEvent, want int) {
	t.Helper()
	deadline := time.After(waitTimeout)
	connected := 0
	for connected < want {
		select {
		case ev := <-events:
			switch e := ev.event.(type) {
			case connection.ConnectedEvent:
				connected++
			case connection.ErrorEvent:
				t.Fatalf("connection %s/%s failed: %v", ev.shareID, ev.peerID, e.Err)
			}
		case <-deadline:
			t.Fatalf("timed out: %d of %d connections", connected, want)
		}
	}
}

func waitJoined(t *testing.T, events <-chan coordEvent, shareID string) *team.Team {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-events:
			if joined, ok := ev.event.(connection.JoinedEvent); ok && ev.shareID == shareID {
				return joined.Team
			}
			if fail, ok := ev.event.(connection.ErrorEvent); ok {
				t.Fatalf("connection %s/%s failed: %v", ev.shareID, ev.peerID, fail.Err)
			}
		case <-deadline:
			t.Fatalf("timed out waiting to join %s", shareID)
		}
	}
}

func TestCoordinatorRoutesLowestShare(t *testing.T) {
	clk := clock.Fake(testEpoch)
	aliceCtx := testContext(t, "alice", "alice-laptop")
	bobCtx := testContext(t, "bob", "bob-phone")

	// Alice and bob are members of two independent teams; both shares
	// connect, routing must pick the lower id.
	aliceAlpha, bobAlpha := newSharedTeam(t, "alpha-team", aliceCtx, bobCtx, clk)
	aliceBeta, bobBeta := newSharedTeam(t, "beta-team", aliceCtx, bobCtx, clk)

	ca, eventsA := newCoordinator(t, aliceCtx, nil, clk)
	cb, eventsB := newCoordinator(t, bobCtx, nil, clk)
	ctx := context.Background()
	for _, reg := range []struct {
		c  *share.Coordinator
		id string
		tm *team.Team
	}{
		{ca, "alpha", aliceAlpha},
		{ca, "beta", aliceBeta},
		{cb, "alpha", bobAlpha},
		{cb, "beta", bobBeta},
	} {
		if err := reg.c.AddShare(ctx, reg.id, reg.tm); err != nil {
			t.Fatalf("AddShare(%s) error: %v", reg.id, err)
		}
	}

	bridge(t, ca, "alice", cb, "bob")
	ca.PeerCandidate("bob")
	cb.PeerCandidate("alice")

	waitConnections(t, eventsA, 2)
	waitConnections(t, eventsB, 2)

	conn, shareID, ok := ca.ConnectionFor("bob")
	if !ok {
		t.Fatal("ConnectionFor(bob) found no connected share")
	}
	if shareID != "alpha" {
		t.Fatalf("ConnectionFor(bob) share = %s, want alpha", shareID)
	}
	if conn.State() != connection.StateConnected {
		t.Fatalf("routed connection state = %s, want %s", conn.State(), connection.StateConnected)
	}
}

func TestCoordinatorBuffersEarlyMessages(t *testing.T) {
	clk := clock.Fake(testEpoch)
	aliceCtx := testContext(t, "alice", "alice-laptop")
	bobCtx := testContext(t, "bob", "bob-phone")
	aliceTeam, bobTeam := newSharedTeam(t, "engineering", aliceCtx, bobCtx, clk)

	ca, eventsA := newCoordinator(t, aliceCtx, nil, clk)
	cb, eventsB := newCoordinator(t, bobCtx, nil, clk)
	ctx := context.Background()
	if err := ca.AddShare(ctx, "alpha", aliceTeam); err != nil {
		t.Fatalf("AddShare() error: %v", err)
	}
	if err := cb.AddShare(ctx, "alpha", bobTeam); err != nil {
		t.Fatalf("AddShare() error: %v", err)
	}

	bridge(t, ca, "alice", cb, "bob")

	// Bob dials first: his HELLO reaches alice before she has any
	// connection for him and must be buffered, then replayed once her
	// own candidate fires.
	cb.PeerCandidate("alice")
	time.Sleep(50 * time.Millisecond)
	ca.PeerCandidate("bob")

	waitConnections(t, eventsA, 1)
	waitConnections(t, eventsB, 1)
}

func TestCoordinatorInviteeJoins(t *testing.T) {
	clk := clock.Fake(testEpoch)
	aliceCtx := testContext(t, "alice", "alice-laptop")
	aliceTeam, err := team.New("engineering", aliceCtx, clk, testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	seed, err := aliceTeam.Invite("bob", 1, time.Hour)
	if err != nil {
		t.Fatalf("Invite() error: %v", err)
	}
	bobCtx := testContext(t, "bob", "bob-phone")

	bobStore := share.NewMemoryStore()
	ca, eventsA := newCoordinator(t, aliceCtx, nil, clk)
	cb, eventsB := newCoordinator(t, bobCtx, bobStore, clk)
	ctx := context.Background()
	if err := ca.AddShare(ctx, "alpha", aliceTeam); err != nil {
		t.Fatalf("AddShare() error: %v", err)
	}
	if err := cb.JoinShare("alpha", seed); err != nil {
		t.Fatalf("JoinShare() error: %v", err)
	}

	bridge(t, ca, "alice", cb, "bob")
	ca.PeerCandidate("bob")
	cb.PeerCandidate("alice")

	joined := waitJoined(t, eventsB, "alpha")
	if joined.Name() != "engineering" {
		t.Fatalf("joined team name = %s, want engineering", joined.Name())
	}
	waitConnections(t, eventsA, 1)
	waitConnections(t, eventsB, 1)

	if _, ok := cb.ShareTeam("alpha"); !ok {
		t.Fatal("bob's coordinator has no team for alpha after joining")
	}
	if _, ok := aliceTeam.State().Member("bob"); !ok {
		t.Fatal("alice's team does not list bob after admission")
	}

	// Admission persisted bob's share; a fresh coordinator restores
	// it from the store.
	record, err := bobStore.Load(ctx, "alpha")
	if err != nil {
		t.Fatalf("Load(alpha) error: %v", err)
	}
	if len(record.Graph) == 0 || len(record.SealedKeyring) == 0 {
		t.Fatal("persisted record is missing graph or keyring")
	}
	restored, _ := newCoordinator(t, joined.Context(), bobStore, clk)
	if err := restored.LoadShares(ctx); err != nil {
		t.Fatalf("LoadShares() error: %v", err)
	}
	restoredTeam, ok := restored.ShareTeam("alpha")
	if !ok {
		t.Fatal("restored coordinator has no team for alpha")
	}
	if restoredTeam.Name() != "engineering" {
		t.Fatalf("restored team name = %s, want engineering", restoredTeam.Name())
	}
}

func TestCoordinatorPersistAndReload(t *testing.T) {
	clk := clock.Fake(testEpoch)
	aliceCtx := testContext(t, "alice", "alice-laptop")
	aliceTeam, err := team.New("engineering", aliceCtx, clk, testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	store := share.NewMemoryStore()
	ctx := context.Background()
	ca, _ := newCoordinator(t, aliceCtx, store, clk)
	if err := ca.AddShare(ctx, "alpha", aliceTeam, "doc-1"); err != nil {
		t.Fatalf("AddShare() error: %v", err)
	}

	restored, _ := newCoordinator(t, aliceCtx, store, clk)
	if err := restored.LoadShares(ctx); err != nil {
		t.Fatalf("LoadShares() error: %v", err)
	}
	restoredTeam, ok := restored.ShareTeam("alpha")
	if !ok {
		t.Fatal("restored coordinator has no team for alpha")
	}
	if restoredTeam.Head() != aliceTeam.Head() {
		t.Fatalf("restored head %s, want %s", restoredTeam.Head(), aliceTeam.Head())
	}
	keys, err := restoredTeam.TeamKeys()
	if err != nil {
		t.Fatalf("TeamKeys() after reload error: %v", err)
	}
	if keys.IsZero() {
		t.Fatal("restored team keys are zero")
	}
}
