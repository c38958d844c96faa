package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/automoto/kitchen-mp/events"
	"github.com/automoto/kitchen-mp/participant"
	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/leap-fish/necs/esync"
	"go.uber.org/zap"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoinedGame
	StateError
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoinedGame:
		return "joined"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Client is a participant's connection to the host. Requests go to the host;
// replicated state arrives through Handle and is applied to the participant
// State. Handle may run on a different goroutine than the request methods.
type Client struct {
	transport ClientTransport
	state     *participant.State
	logger    *zap.Logger
	subs      events.Group

	mu          sync.RWMutex
	conn        ClientState
	join        messages.JoinRequest
	peer        netconfig.PeerID
	sessionName string
	tickRate    int
	lastReason  string
	localReady  bool
	localPaused bool

	TryingToJoin     events.Bus[struct{}]
	FailedToJoin     events.Bus[string]
	Joined           events.Bus[messages.JoinAccepted]
	HostDisconnected events.Bus[string]
	LocalPaused      events.Bus[struct{}]
	LocalUnpaused    events.Bus[struct{}]
}

func NewClient(transport ClientTransport, state *participant.State, logger *zap.Logger) *Client {
	c := &Client{
		transport: transport,
		state:     state,
		logger:    logger.Named("client"),
		conn:      StateDisconnected,
	}
	c.subs.Add(state.ResyncNeeded.Subscribe(func(struct{}) {
		c.logger.Info("missed a state diff, requesting resync")
		if err := c.transport.Send(messages.ResyncRequest{}); err != nil {
			c.logger.Warn("resync request failed", zap.Error(err))
		}
	}))
	return c
}

// StartClient connects to the configured host and asks to join once the
// connection is up. A failure before the host accepts raises FailedToJoin.
func (c *Client) StartClient(ctx context.Context, join messages.JoinRequest) error {
	c.mu.Lock()
	c.conn = StateConnecting
	c.join = join
	c.lastReason = ""
	c.localReady = false
	c.localPaused = false
	c.mu.Unlock()

	c.TryingToJoin.Publish(struct{}{})

	if err := c.transport.Connect(ctx); err != nil {
		c.failJoin(err.Error())
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Run applies transport events until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.transport.Events():
			c.Handle(ev)
		}
	}
}

// Handle applies one transport event.
func (c *Client) Handle(ev Event) {
	switch ev.Kind {
	case EventConnected:
		c.onConnected()
	case EventDisconnected:
		c.onDisconnected(ev)
	case EventMessage:
		c.onMessage(ev.Message)
	}
}

func (c *Client) onConnected() {
	c.mu.Lock()
	c.conn = StateConnected
	join := c.join
	c.mu.Unlock()

	c.logger.Info("connected to host, requesting to join")
	if err := c.transport.Send(join); err != nil {
		c.logger.Warn("join request failed", zap.Error(err))
	}
}

func (c *Client) onMessage(msg any) {
	switch m := msg.(type) {
	case messages.JoinAccepted:
		c.mu.Lock()
		c.conn = StateJoinedGame
		c.peer = m.Peer
		c.sessionName = m.SessionName
		c.tickRate = m.TickRate
		c.mu.Unlock()
		c.logger.Info("join accepted", zap.String("peer", string(m.Peer)), zap.String("session", m.SessionName))
		c.Joined.Publish(m)

	case messages.JoinRejected:
		c.logger.Info("join rejected", zap.String("reason", m.Reason))
		c.setReason(m.Reason)

	case messages.Kicked:
		c.logger.Info("kicked", zap.String("reason", m.Reason))
		c.setReason(m.Reason)

	default:
		if err := c.state.Apply(msg); err != nil && !errors.Is(err, participant.ErrUnhandled) {
			c.logger.Debug("apply failed", zap.Error(err))
		}
	}
}

func (c *Client) onDisconnected(ev Event) {
	if ev.Reason != "" {
		c.setReason(ev.Reason)
	}

	c.mu.Lock()
	joined := c.conn == StateJoinedGame
	if c.conn == StateDisconnected || c.conn == StateError {
		c.mu.Unlock()
		return
	}
	reason := c.lastReason
	c.mu.Unlock()

	if !joined {
		c.failJoin(reason)
		return
	}

	c.mu.Lock()
	c.conn = StateDisconnected
	c.mu.Unlock()
	if reason == "" {
		reason = "Host disconnected"
	}
	c.logger.Info("session ended", zap.String("reason", reason), zap.Error(ev.Err))
	c.HostDisconnected.Publish(reason)
}

func (c *Client) failJoin(reason string) {
	if reason == "" {
		reason = netconfig.DefaultDisconnectReason
	}
	c.mu.Lock()
	c.conn = StateError
	c.lastReason = reason
	c.mu.Unlock()

	c.logger.Info("failed to join", zap.String("reason", reason))
	c.FailedToJoin.Publish(reason)
}

func (c *Client) setReason(reason string) {
	c.mu.Lock()
	c.lastReason = reason
	c.mu.Unlock()
}

// Disconnect leaves the session.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.conn = StateDisconnected
	c.mu.Unlock()
	return c.transport.Close()
}

// Close disconnects and releases every subscription the client holds.
func (c *Client) Close() error {
	err := c.Disconnect()
	c.subs.Release()
	return err
}

// Ready votes to start the match.
func (c *Client) Ready() error {
	if err := c.send(messages.ReadyRequest{}); err != nil {
		return err
	}
	c.mu.Lock()
	c.localReady = true
	c.mu.Unlock()
	return nil
}

// IsLocalPlayerReady reports whether this participant already voted ready.
func (c *Client) IsLocalPlayerReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localReady
}

// TogglePause flips this participant's pause vote.
func (c *Client) TogglePause() error {
	c.mu.Lock()
	paused := !c.localPaused
	c.mu.Unlock()

	if err := c.send(messages.PauseRequest{Paused: paused}); err != nil {
		return err
	}

	c.mu.Lock()
	c.localPaused = paused
	c.mu.Unlock()
	if paused {
		c.LocalPaused.Publish(struct{}{})
	} else {
		c.LocalUnpaused.Publish(struct{}{})
	}
	return nil
}

// IsLocalPaused reports this participant's own pause vote.
func (c *Client) IsLocalPaused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localPaused
}

func (c *Client) ChangeColor(colorIndex int) error {
	return c.send(messages.ChangeColorRequest{ColorIndex: colorIndex})
}

// Spawn asks the host to create an object. Nothing appears locally until the
// host confirms.
func (c *Client) Spawn(typeIndex int, parent esync.NetworkId) error {
	return c.send(messages.SpawnRequest{TypeIndex: typeIndex, Parent: parent})
}

func (c *Client) Destroy(entity esync.NetworkId) error {
	return c.send(messages.DestroyRequest{Entity: entity})
}

func (c *Client) Transfer(entity, parent esync.NetworkId) error {
	return c.send(messages.TransferRequest{Entity: entity, Parent: parent})
}

func (c *Client) send(msg any) error {
	if c.ConnectionState() != StateJoinedGame {
		return ErrNotConnected
	}
	return c.transport.Send(msg)
}

func (c *Client) ConnectionState() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// LastDisconnectReason returns the most recent reason the host gave for
// closing the connection.
func (c *Client) LastDisconnectReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReason
}

// Peer returns the id the host assigned to this participant.
func (c *Client) Peer() netconfig.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer
}

func (c *Client) SessionName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionName
}

func (c *Client) TickRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickRate
}

// State returns the replicated session state.
func (c *Client) State() *participant.State {
	return c.state
}
