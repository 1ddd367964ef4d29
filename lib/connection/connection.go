// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quorate/quorate/lib/clock"
	"github.com/quorate/quorate/lib/crypto"
	"github.com/quorate/quorate/lib/graph"
	"github.com/quorate/quorate/lib/identity"
	"github.com/quorate/quorate/lib/invitation"
	"github.com/quorate/quorate/lib/team"
)

// HandshakeTimeout bounds every protocol phase that waits on a single
// expected message. A phase that overruns it fails the connection.
const HandshakeTimeout = 7 * time.Second

// seedSize is the size of each side's session-key seed.
const seedSize = 32

// State is the connection's top-level protocol state.
type State string

const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateSynchronizing State = "synchronizing"
	StateNegotiating   State = "negotiating"
	StateConnected     State = "connected"
	StateDisconnected  State = "disconnected"
	StateFailure       State = "failure"
)

// Event is something the connection reports to its owner.
type Event interface{ connectionEvent() }

// ConnectedEvent fires once when the handshake completes and the
// session key is established.
type ConnectedEvent struct{}

// DisconnectedEvent fires when the connection ends in an orderly way.
// Reason is nil for a peer-initiated disconnect, ErrCancelled for a
// local Stop, or ErrPeerRemoved / ErrSelfRemoved when a merge showed
// a side is no longer a member.
type DisconnectedEvent struct{ Reason error }

// UpdatedEvent fires when a merge moved the local graph head.
type UpdatedEvent struct{ Head crypto.Hash }

// JoinedEvent fires on the invitee side once the team graph has been
// adopted and the local device and keys are on it.
type JoinedEvent struct{ Team *team.Team }

// ErrorEvent reports a protocol failure. Remote marks errors the peer
// reported about us, as opposed to ones we detected.
type ErrorEvent struct {
	Err    error
	Remote bool
}

func (ConnectedEvent) connectionEvent()    {}
func (DisconnectedEvent) connectionEvent() {}
func (UpdatedEvent) connectionEvent()      {}
func (JoinedEvent) connectionEvent()       {}
func (ErrorEvent) connectionEvent()        {}

// Config configures one side of a connection.
type Config struct {
	// Team is the local team. Nil when the local side is an invitee,
	// in which case the team arrives from the peer.
	Team *team.Team

	// Context is the local identity. An invitee's UserKeys are the
	// seed-derived starter keys.
	Context team.Context

	// InvitationSeed is non-empty when the local side is joining by
	// invitation.
	InvitationSeed invitation.Seed

	Clock  clock.Clock
	Logger *slog.Logger
}

// Connection is one side of the pairwise protocol. All protocol work
// happens on a single internal goroutine; Deliver, Stop, and the
// accessors are safe to call from anywhere.
type Connection struct {
	cfg    Config
	clk    clock.Clock
	logger *slog.Logger

	inbox        chan Message
	outgoing     chan Message
	events       chan Event
	localUpdates chan crypto.Hash
	timeouts     chan int
	stopOnce     sync.Once
	stopc        chan struct{}
	done         chan struct{}

	mu         sync.Mutex
	state      State
	teamRef    *team.Team
	sessionKey crypto.SymmetricKey
	haveKey    bool

	// Everything below is owned by the run goroutine.
	weAreInvitee   bool
	theyAreInvitee bool
	helloReceived  bool
	peerClaim      identity.Claim
	peerDeviceBox  crypto.BoxPublicKey

	issuedChallenge *identity.Challenge
	peerVerified    bool
	weAccepted      bool

	ourSeed   [seedSize]byte
	theirSeed *[seedSize]byte
	seedSent  bool

	peerHead       crypto.Hash
	lastUpdateHead crypto.Hash
	connectedOnce  bool

	sendIndex     uint64
	nextIndex     uint64
	pendingInbox  map[uint64]Message
	deadlineEpoch int
	deadline      *clock.Timer
}

// New builds a connection. Call Start to begin the handshake.
func New(cfg Config) (*Connection, error) {
	if cfg.Team == nil && cfg.InvitationSeed == "" {
		return nil, errors.New("connection: no team and no invitation")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Connection{
		cfg:          cfg,
		clk:          cfg.Clock,
		logger:       cfg.Logger.With("peer_of", cfg.Context.UserID),
		inbox:        make(chan Message, 64),
		outgoing:     make(chan Message, 64),
		events:       make(chan Event, 32),
		localUpdates: make(chan crypto.Hash, 16),
		timeouts:     make(chan int, 4),
		stopc:        make(chan struct{}),
		done:         make(chan struct{}),
		state:        StateIdle,
		teamRef:      cfg.Team,
		weAreInvitee: cfg.InvitationSeed != "",
		pendingInbox: map[uint64]Message{},
	}
	if _, err := rand.Read(c.ourSeed[:]); err != nil {
		return nil, fmt.Errorf("generating session seed: %w", err)
	}
	return c, nil
}

// Start launches the protocol goroutine and sends HELLO.
func (c *Connection) Start() {
	go c.run()
}

// Deliver hands an inbound wire message to the connection. Messages
// may arrive in any index order; the machine reorders them.
func (c *Connection) Deliver(m Message) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

// Outgoing is the stream of wire messages the transport adapter must
// deliver to the peer.
func (c *Connection) Outgoing() <-chan Message { return c.outgoing }

// Events is the stream of connection events.
func (c *Connection) Events() <-chan Event { return c.events }

// Done is closed when the connection reaches a terminal state.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Stop cancels the connection: it tells the peer, moves to
// disconnected, and zeroes the session key.
func (c *Connection) Stop() {
	c.stopOnce.Do(func() { close(c.stopc) })
}

// State returns the current protocol state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Team returns the team this connection operates on. For an invitee
// it is nil until the JoinedEvent fires.
func (c *Connection) Team() *team.Team {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teamRef
}

// SessionKey returns the negotiated session key once connected.
func (c *Connection) SessionKey() (crypto.SymmetricKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey, c.haveKey
}

func (c *Connection) run() {
	defer close(c.done)
	c.start()
	for {
		if c.terminal() {
			return
		}
		select {
		case m := <-c.inbox:
			c.enqueue(m)
		case epoch := <-c.timeouts:
			c.onTimeout(epoch)
		case head := <-c.localUpdates:
			c.onLocalUpdate(head)
		case <-c.stopc:
			c.onStop()
		}
	}
}

func (c *Connection) start() {
	c.setState(StateConnecting)

	hello := HelloPayload{
		Claim: identity.Claim{UserID: c.cfg.Context.UserID, DeviceID: c.cfg.Context.DeviceID},
	}
	if c.weAreInvitee {
		proof, err := invitation.GenerateProof(c.cfg.InvitationSeed, c.cfg.Context.UserID)
		if err != nil {
			c.fail(err)
			return
		}
		memberKeys := c.cfg.Context.UserKeys.Public()
		device := c.cfg.Context.Device()
		hello.Proof = &proof
		hello.MemberKeys = &memberKeys
		hello.Device = &device
	} else {
		c.subscribeTeam(c.cfg.Team)
	}
	c.send(MessageHello, hello)
	c.armDeadline()
}

// subscribeTeam forwards local head changes into the run loop so the
// connected state can push updates to the peer.
func (c *Connection) subscribeTeam(t *team.Team) {
	t.OnUpdated(func(head crypto.Hash) {
		select {
		case c.localUpdates <- head:
		case <-c.done:
		default:
		}
	})
}

func (c *Connection) terminal() bool {
	s := c.State()
	return s == StateDisconnected || s == StateFailure
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.logger.Warn("dropping connection event", "event", fmt.Sprintf("%T", e))
	}
}

func (c *Connection) send(msgType string, payload any) {
	raw, err := encodePayload(payload)
	if err != nil {
		c.fail(err)
		return
	}
	m := Message{
		Type:     msgType,
		SenderID: c.cfg.Context.UserID,
		TargetID: c.peerClaim.UserID,
		Index:    c.sendIndex,
		Payload:  raw,
	}
	c.sendIndex++
	select {
	case c.outgoing <- m:
	case <-c.stopc:
	}
}

// enqueue releases buffered messages to the handler in index order.
func (c *Connection) enqueue(m Message) {
	if m.Index < c.nextIndex {
		return // duplicate
	}
	c.pendingInbox[m.Index] = m
	for {
		next, ok := c.pendingInbox[c.nextIndex]
		if !ok {
			return
		}
		delete(c.pendingInbox, c.nextIndex)
		c.nextIndex++
		c.handle(next)
		if c.terminal() {
			return
		}
	}
}

func (c *Connection) handle(m Message) {
	var err error
	switch m.Type {
	case MessageHello:
		err = c.onHello(m)
	case MessageAcceptInvitation:
		err = c.onAcceptInvitation(m)
	case MessageChallengeIdentity:
		err = c.onChallengeIdentity(m)
	case MessageProveIdentity:
		err = c.onProveIdentity(m)
	case MessageAcceptIdentity:
		err = c.onAcceptIdentity(m)
	case MessageSeed:
		err = c.onSeed(m)
	case MessageUpdate:
		err = c.onUpdate(m)
	case MessageMissingLinks:
		err = c.onMissingLinks(m)
	case MessageDisconnect:
		c.disconnect(nil)
	case MessageError:
		c.onRemoteError(m)
	default:
		err = fmt.Errorf("message type %q: %w", m.Type, ErrUnexpectedMessage)
	}
	if err != nil {
		c.sendError(err)
		c.fail(err)
	}
}

func (c *Connection) onHello(m Message) error {
	if c.helloReceived {
		return fmt.Errorf("second HELLO: %w", ErrUnexpectedMessage)
	}
	p, err := decodeInto[HelloPayload](m)
	if err != nil {
		return err
	}
	c.helloReceived = true
	c.peerClaim = p.Claim

	if p.Proof != nil {
		if c.weAreInvitee {
			return ErrNeitherIsMember
		}
		return c.admitPeer(p)
	}
	if c.weAreInvitee {
		// We cannot verify anything yet; the peer's ACCEPT_INVITATION
		// will carry the team.
		return nil
	}
	return c.challengePeer()
}

// admitPeer validates an invitee's proof, puts them on the graph, and
// hands them the team.
func (c *Connection) admitPeer(p *HelloPayload) error {
	if p.MemberKeys == nil || p.Device == nil {
		return fmt.Errorf("invitee HELLO without keys: %w", ErrInvitationRejected)
	}
	t := c.Team()
	if err := t.Admit(*p.Proof, *p.MemberKeys, *p.Device); err != nil {
		return fmt.Errorf("%w: %w", ErrInvitationRejected, err)
	}
	saved, err := t.Save()
	if err != nil {
		return err
	}
	c.send(MessageAcceptInvitation, AcceptInvitationPayload{Graph: saved})

	// The invitation proof stands in for the identity challenge.
	c.peerVerified = true
	c.peerDeviceBox = p.Device.Keys.Encryption
	if err := c.sendSeed(MessageSeed); err != nil {
		return err
	}
	c.maybeAdvanceToSync()
	return nil
}

// challengePeer verifies the peer's claim against the team and issues
// an identity challenge.
func (c *Connection) challengePeer() error {
	t := c.Team()
	state := t.State()
	device, ok := state.Device(c.peerClaim.DeviceID)
	if !ok || device.UserID != c.peerClaim.UserID {
		return fmt.Errorf("claim %s/%s: %w", c.peerClaim.UserID, c.peerClaim.DeviceID, ErrIdentityRejected)
	}
	challenge, err := identity.NewChallenge(c.peerClaim, c.clk.Now())
	if err != nil {
		return err
	}
	c.issuedChallenge = &challenge
	c.send(MessageChallengeIdentity, ChallengeIdentityPayload{Challenge: challenge})
	return nil
}

func (c *Connection) onAcceptInvitation(m Message) error {
	if !c.weAreInvitee || c.Team() != nil {
		return fmt.Errorf("ACCEPT_INVITATION: %w", ErrUnexpectedMessage)
	}
	p, err := decodeInto[AcceptInvitationPayload](m)
	if err != nil {
		return err
	}
	g, err := graph.Deserialize(p.Graph)
	if err != nil {
		return err
	}
	t, err := team.FromGraph(g, c.cfg.Context, c.clk, c.logger)
	if err != nil {
		return err
	}
	id := invitation.DeriveID(c.cfg.InvitationSeed)
	if _, ok := t.State().Invitations[id]; !ok {
		return fmt.Errorf("graph lacks our invitation: %w", ErrWrongTeam)
	}
	if err := t.Join(); err != nil {
		return err
	}

	c.mu.Lock()
	c.teamRef = t
	c.mu.Unlock()
	c.subscribeTeam(t)
	c.emit(JoinedEvent{Team: t})

	// The peer proved nothing yet; challenge them like any member.
	return c.challengePeer()
}

func (c *Connection) onChallengeIdentity(m Message) error {
	p, err := decodeInto[ChallengeIdentityPayload](m)
	if err != nil {
		return err
	}
	if p.Challenge.UserID != c.cfg.Context.UserID || p.Challenge.DeviceID != c.cfg.Context.DeviceID {
		return fmt.Errorf("challenge names %s/%s: %w", p.Challenge.UserID, p.Challenge.DeviceID, ErrUnexpectedMessage)
	}
	proof, err := identity.Prove(p.Challenge, c.cfg.Context.DeviceKeys.SignKeypair())
	if err != nil {
		return err
	}
	c.send(MessageProveIdentity, ProveIdentityPayload{Proof: proof})
	return nil
}

func (c *Connection) onProveIdentity(m Message) error {
	if c.issuedChallenge == nil || c.peerVerified {
		return fmt.Errorf("PROVE_IDENTITY: %w", ErrUnexpectedMessage)
	}
	p, err := decodeInto[ProveIdentityPayload](m)
	if err != nil {
		return err
	}
	t := c.Team()
	device, ok := t.State().Device(c.peerClaim.DeviceID)
	if !ok || device.UserID != c.peerClaim.UserID {
		return fmt.Errorf("claim %s/%s: %w", c.peerClaim.UserID, c.peerClaim.DeviceID, ErrIdentityRejected)
	}
	if err := identity.Verify(*c.issuedChallenge, p.Proof, device.Keys.Signature, c.clk.Now()); err != nil {
		return fmt.Errorf("%w: %w", ErrIdentityRejected, err)
	}
	c.peerVerified = true
	c.peerDeviceBox = device.Keys.Encryption
	if err := c.sendSeed(MessageAcceptIdentity); err != nil {
		return err
	}
	c.maybeAdvanceToSync()
	return nil
}

// sendSeed seals our session seed to the peer's device encryption key
// and sends it under the given message type.
func (c *Connection) sendSeed(msgType string) error {
	sealed, err := crypto.Seal(c.ourSeed[:], c.peerDeviceBox)
	if err != nil {
		return fmt.Errorf("sealing session seed: %w", err)
	}
	c.seedSent = true
	if msgType == MessageSeed {
		c.send(msgType, SeedPayload{SealedSeed: sealed})
	} else {
		c.send(msgType, AcceptIdentityPayload{SealedSeed: sealed})
	}
	return nil
}

func (c *Connection) onAcceptIdentity(m Message) error {
	p, err := decodeInto[AcceptIdentityPayload](m)
	if err != nil {
		return err
	}
	return c.receiveSeed(p.SealedSeed)
}

func (c *Connection) onSeed(m Message) error {
	p, err := decodeInto[SeedPayload](m)
	if err != nil {
		return err
	}
	return c.receiveSeed(p.SealedSeed)
}

// receiveSeed opens the peer's sealed session seed. Receiving it also
// means the peer accepted our identity (or our invitation proof).
func (c *Connection) receiveSeed(sealed []byte) error {
	if c.theirSeed != nil {
		return fmt.Errorf("second session seed: %w", ErrUnexpectedMessage)
	}
	opened, err := crypto.Open(sealed, c.cfg.Context.DeviceKeys.BoxKeypair())
	if err != nil {
		return fmt.Errorf("opening session seed: %w", err)
	}
	if len(opened) != seedSize {
		return fmt.Errorf("session seed is %d bytes: %w", len(opened), ErrUnexpectedMessage)
	}
	var seed [seedSize]byte
	copy(seed[:], opened)
	c.theirSeed = &seed
	c.weAccepted = true
	c.maybeAdvanceToSync()
	c.maybeConnect()
	return nil
}

// maybeAdvanceToSync moves from connecting to synchronizing once both
// identity directions are settled, and announces our graph position.
func (c *Connection) maybeAdvanceToSync() {
	if c.State() != StateConnecting || !c.peerVerified || !c.weAccepted {
		return
	}
	c.setState(StateSynchronizing)
	c.armDeadline()
	c.sendUpdate()
}

func (c *Connection) sendUpdate() {
	g := c.Team().Graph()
	c.lastUpdateHead = g.Head
	c.send(MessageUpdate, UpdatePayload{Root: g.Root, Head: g.Head, Hashes: g.Hashes()})
}

func (c *Connection) onUpdate(m Message) error {
	switch c.State() {
	case StateSynchronizing, StateNegotiating, StateConnected:
	default:
		return fmt.Errorf("UPDATE in %s: %w", c.State(), ErrUnexpectedMessage)
	}
	p, err := decodeInto[UpdatePayload](m)
	if err != nil {
		return err
	}
	g := c.Team().Graph()
	if p.Root != g.Root {
		return fmt.Errorf("peer root %s: %w", p.Root, ErrWrongTeam)
	}
	c.peerHead = p.Head

	if p.Head == g.Head {
		c.maybeConnect()
		return nil
	}
	if c.State() == StateConnected {
		c.setState(StateSynchronizing)
		c.armDeadline()
	}

	theirs := make(map[crypto.Hash]bool, len(p.Hashes))
	for _, h := range p.Hashes {
		theirs[h] = true
	}
	var missing []*graph.Link
	for h, link := range g.Links {
		if !theirs[h] {
			missing = append(missing, link)
		}
	}
	if len(missing) > 0 {
		c.send(MessageMissingLinks, MissingLinksPayload{Head: g.Head, Links: missing})
		return nil
	}
	// Nothing to offer: the peer is strictly ahead. Announce our
	// position so they can compute what we lack.
	c.sendUpdate()
	return nil
}

func (c *Connection) onMissingLinks(m Message) error {
	switch c.State() {
	case StateSynchronizing, StateNegotiating, StateConnected:
	default:
		return fmt.Errorf("MISSING_LINKS in %s: %w", c.State(), ErrUnexpectedMessage)
	}
	p, err := decodeInto[MissingLinksPayload](m)
	if err != nil {
		return err
	}
	t := c.Team()
	g := t.Graph()
	combined := g.Clone()
	for _, link := range p.Links {
		combined.Links[link.Hash()] = link
	}
	combined.Head = p.Head
	if err := t.Merge(combined); err != nil {
		return err
	}
	c.peerHead = p.Head

	head := t.Head()
	c.emit(UpdatedEvent{Head: head})
	if removed := c.checkMembership(); removed != nil {
		c.send(MessageDisconnect, DisconnectPayload{Reason: removed.Error()})
		c.disconnect(removed)
		return nil
	}
	c.sendUpdate()
	c.maybeConnect()
	return nil
}

// checkMembership reports whether either side stopped being a member
// after a merge.
func (c *Connection) checkMembership() error {
	state := c.Team().State()
	if _, ok := state.Member(c.peerClaim.UserID); !ok && c.peerClaim.UserID != "" {
		return ErrPeerRemoved
	}
	if _, ok := state.Member(c.cfg.Context.UserID); !ok {
		return ErrSelfRemoved
	}
	return nil
}

// maybeConnect completes the handshake once the graphs agree and both
// session seeds are in hand.
func (c *Connection) maybeConnect() {
	switch c.State() {
	case StateSynchronizing, StateNegotiating:
	default:
		return
	}
	if c.Team().Head() != c.peerHead {
		return
	}
	if c.theirSeed == nil {
		c.setState(StateNegotiating)
		c.armDeadline()
		return
	}
	if removed := c.checkMembership(); removed != nil {
		c.send(MessageDisconnect, DisconnectPayload{Reason: removed.Error()})
		c.disconnect(removed)
		return
	}

	lo, hi := c.ourSeed[:], c.theirSeed[:]
	if bytes.Compare(hi, lo) < 0 {
		lo, hi = hi, lo
	}
	key := crypto.SymmetricKey(crypto.DeriveKey(crypto.DomainSession, lo, hi))

	c.mu.Lock()
	c.sessionKey = key
	c.haveKey = true
	c.state = StateConnected
	c.mu.Unlock()

	c.cancelDeadline()
	if !c.connectedOnce {
		c.connectedOnce = true
		c.emit(ConnectedEvent{})
	}
}

func (c *Connection) onLocalUpdate(head crypto.Hash) {
	if c.State() != StateConnected || head == c.lastUpdateHead {
		return
	}
	// A local change can be the removal of the very peer we are
	// talking to. Drop the connection rather than sync them the link
	// that removes them.
	if removed := c.checkMembership(); removed != nil {
		c.send(MessageDisconnect, DisconnectPayload{Reason: removed.Error()})
		c.disconnect(removed)
		return
	}
	c.sendUpdate()
}

func (c *Connection) onRemoteError(m Message) {
	p, err := decodeInto[ErrorPayload](m)
	message := "unknown"
	if err == nil {
		message = p.Code
		if p.Message != "" {
			message = p.Code + ": " + p.Message
		}
	}
	c.emit(ErrorEvent{Err: fmt.Errorf("%w: %s", ErrRemote, message), Remote: true})
	c.setState(StateFailure)
	c.zeroKey()
}

func (c *Connection) sendError(err error) {
	c.send(MessageError, ErrorPayload{Code: errorCode(err), Message: err.Error()})
}

// errorCode picks the stable wire code for a local failure.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNeitherIsMember):
		return "NEITHER_IS_MEMBER"
	case errors.Is(err, ErrInvitationRejected):
		return "REJECT_INVITATION"
	case errors.Is(err, ErrIdentityRejected):
		return "REJECT_IDENTITY"
	case errors.Is(err, ErrWrongTeam):
		return "WRONG_TEAM"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	default:
		return "PROTOCOL"
	}
}

func (c *Connection) fail(err error) {
	c.logger.Warn("connection failed", "error", err)
	c.setState(StateFailure)
	c.cancelDeadline()
	c.zeroKey()
	c.emit(ErrorEvent{Err: err})
}

func (c *Connection) disconnect(reason error) {
	c.setState(StateDisconnected)
	c.cancelDeadline()
	c.zeroKey()
	c.emit(DisconnectedEvent{Reason: reason})
}

func (c *Connection) onStop() {
	if c.terminal() {
		return
	}
	m := Message{
		Type:     MessageDisconnect,
		SenderID: c.cfg.Context.UserID,
		TargetID: c.peerClaim.UserID,
		Index:    c.sendIndex,
	}
	c.sendIndex++
	select {
	case c.outgoing <- m:
	default:
	}
	c.disconnect(ErrCancelled)
}

func (c *Connection) zeroKey() {
	c.mu.Lock()
	c.sessionKey.Zero()
	c.haveKey = false
	c.mu.Unlock()
}

func (c *Connection) armDeadline() {
	c.cancelDeadline()
	c.deadlineEpoch++
	epoch := c.deadlineEpoch
	c.deadline = c.clk.AfterFunc(HandshakeTimeout, func() {
		select {
		case c.timeouts <- epoch:
		case <-c.done:
		}
	})
}

func (c *Connection) cancelDeadline() {
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
	c.deadlineEpoch++
}

func (c *Connection) onTimeout(epoch int) {
	if epoch != c.deadlineEpoch || c.terminal() || c.State() == StateConnected {
		return
	}
	c.sendError(ErrTimeout)
	c.fail(fmt.Errorf("in %s: %w", c.State(), ErrTimeout))
}
