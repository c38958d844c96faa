// Package lobby finds, creates and leaves sessions in the directory service
// and bootstraps the relay path the transport then connects over.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/automoto/kitchen-mp/events"
	"github.com/automoto/kitchen-mp/network"
	"github.com/automoto/kitchen-mp/shared/directory"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	ErrNotJoined   = errors.New("not in a session")
	ErrNotHost     = errors.New("only the host can do that")
	ErrSuperseded  = errors.New("superseded by a later request")
	ErrNoTransport = errors.New("no transport for this role")
)

// Config holds the local player's identity and the client's timings.
type Config struct {
	PlayerID   string
	PlayerName string
	MaxPlayers int

	// AdvertiseAddr is the host:port guests dial when this player hosts.
	AdvertiseAddr string
	ListenPort    uint

	HeartbeatInterval   time.Duration
	ListRefreshInterval time.Duration
	ShutdownTimeout     time.Duration
}

// Client is the local player's view of the directory. Every flow that
// changes the joined session bumps a generation counter; a flow whose
// generation is no longer current when its calls return is superseded and
// undoes what it created.
type Client struct {
	cfg             Config
	dir             Directory
	relay           RelayService
	hostTransport   network.HostTransport
	clientTransport network.ClientTransport
	clock           clockwork.Clock
	logger          *zap.Logger

	mu       sync.Mutex
	gen      uint64
	session  *directory.Session
	sessions []directory.Session

	CreateStarted   events.Bus[struct{}]
	CreateFailed    events.Bus[error]
	JoinStarted     events.Bus[struct{}]
	JoinFailed      events.Bus[error]
	QuickJoinFailed events.Bus[error]
	SessionsChanged events.Bus[[]directory.Session]
	SessionJoined   events.Bus[directory.Session]
	SessionLeft     events.Bus[struct{}]
}

// NewClient builds a lobby client. Either transport may be nil when the
// process only ever plays that role's counterpart.
func NewClient(cfg Config, dir Directory, relay RelayService, host network.HostTransport, client network.ClientTransport, clock clockwork.Clock, logger *zap.Logger) *Client {
	return &Client{
		cfg:             cfg,
		dir:             dir,
		relay:           relay,
		hostTransport:   host,
		clientTransport: client,
		clock:           clock,
		logger:          logger.Named("lobby"),
	}
}

// CreateSession creates a session hosted by the local player and prepares the
// host transport.
func (c *Client) CreateSession(ctx context.Context, name string, private bool) (directory.Session, error) {
	gen := c.begin()
	c.CreateStarted.Publish(struct{}{})

	s, err := c.dir.Create(ctx, directory.CreateRequest{
		Name:       name,
		Private:    private,
		MaxPlayers: c.cfg.MaxPlayers,
		PlayerName: c.cfg.PlayerName,
	})
	if err != nil {
		return directory.Session{}, c.fail(&c.CreateFailed, fmt.Errorf("create session: %w", err))
	}
	if !c.current(gen) {
		c.discard(s)
		return directory.Session{}, ErrSuperseded
	}

	s, err = c.bootstrapHost(ctx, s)
	if err != nil {
		c.discard(s)
		return directory.Session{}, c.fail(&c.CreateFailed, err)
	}
	if !c.commit(gen, s) {
		c.discard(s)
		return directory.Session{}, ErrSuperseded
	}

	c.logger.Info("session created", zap.String("id", s.ID), zap.String("code", s.Code), zap.Bool("private", s.Private))
	c.SessionJoined.Publish(s)
	return s, nil
}

// QuickJoin joins the oldest public session with a free slot.
func (c *Client) QuickJoin(ctx context.Context) (directory.Session, error) {
	return c.join(ctx, &c.QuickJoinFailed, func(ctx context.Context) (directory.Session, error) {
		return c.dir.QuickJoin(ctx, c.cfg.PlayerName)
	})
}

func (c *Client) JoinByID(ctx context.Context, id string) (directory.Session, error) {
	return c.join(ctx, &c.JoinFailed, func(ctx context.Context) (directory.Session, error) {
		return c.dir.Join(ctx, id, c.cfg.PlayerName)
	})
}

func (c *Client) JoinByCode(ctx context.Context, code string) (directory.Session, error) {
	return c.join(ctx, &c.JoinFailed, func(ctx context.Context) (directory.Session, error) {
		return c.dir.JoinByCode(ctx, code, c.cfg.PlayerName)
	})
}

func (c *Client) join(ctx context.Context, failed *events.Bus[error], call func(context.Context) (directory.Session, error)) (directory.Session, error) {
	gen := c.begin()
	c.JoinStarted.Publish(struct{}{})

	s, err := call(ctx)
	if err != nil {
		return directory.Session{}, c.fail(failed, fmt.Errorf("join session: %w", err))
	}
	if !c.current(gen) {
		c.discard(s)
		return directory.Session{}, ErrSuperseded
	}

	if err := c.bootstrapClient(ctx, s); err != nil {
		c.discard(s)
		return directory.Session{}, c.fail(failed, err)
	}
	if !c.commit(gen, s) {
		c.discard(s)
		return directory.Session{}, ErrSuperseded
	}

	c.logger.Info("session joined", zap.String("id", s.ID), zap.String("name", s.Name))
	c.SessionJoined.Publish(s)
	return s, nil
}

// DeleteSession removes the hosted session from the directory.
func (c *Client) DeleteSession(ctx context.Context) error {
	s, ok := c.Session()
	if !ok {
		return ErrNotJoined
	}
	if !s.IsHost(c.cfg.PlayerID) {
		return ErrNotHost
	}
	if _, err := c.leave(); err != nil {
		return err
	}
	if err := c.dir.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// LeaveSession removes the local player from the session. It also
// supersedes a create or join still in flight.
func (c *Client) LeaveSession(ctx context.Context) error {
	s, err := c.leave()
	if err != nil {
		return err
	}
	if err := c.dir.RemoveMember(ctx, s.ID, c.cfg.PlayerID); err != nil {
		return fmt.Errorf("leave session: %w", err)
	}
	return nil
}

// KickMember removes playerID from the hosted session.
func (c *Client) KickMember(ctx context.Context, playerID string) error {
	s, ok := c.Session()
	if !ok {
		return ErrNotJoined
	}
	if !s.IsHost(c.cfg.PlayerID) {
		return ErrNotHost
	}
	if err := c.dir.RemoveMember(ctx, s.ID, playerID); err != nil {
		return fmt.Errorf("kick %s: %w", playerID, err)
	}

	c.mu.Lock()
	if c.session != nil && c.session.ID == s.ID {
		members := c.session.Members[:0:0]
		for _, m := range c.session.Members {
			if m.PlayerID != playerID {
				members = append(members, m)
			}
		}
		c.session.Members = members
	}
	c.mu.Unlock()
	return nil
}

// ListOpenSessions returns the last fetched list of joinable sessions.
func (c *Client) ListOpenSessions() []directory.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]directory.Session(nil), c.sessions...)
}

// RefreshSessions fetches the joinable sessions now.
func (c *Client) RefreshSessions(ctx context.Context) error {
	list, err := c.dir.List(ctx, true)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	c.mu.Lock()
	c.sessions = list
	c.mu.Unlock()
	c.SessionsChanged.Publish(append([]directory.Session(nil), list...))
	return nil
}

// Run refreshes the session list while not in a session and heartbeats a
// hosted session, until ctx is done. Failures are logged and retried on the
// next interval.
func (c *Client) Run(ctx context.Context) error {
	refresh := c.clock.NewTicker(c.cfg.ListRefreshInterval)
	defer refresh.Stop()
	heartbeat := c.clock.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refresh.Chan():
			if c.InSession() {
				continue
			}
			if err := c.RefreshSessions(ctx); err != nil {
				c.logger.Warn("session list refresh failed", zap.Error(err))
			}
		case <-heartbeat.Chan():
			s, ok := c.Session()
			if !ok || !s.IsHost(c.cfg.PlayerID) {
				continue
			}
			if err := c.dir.Heartbeat(ctx, s.ID); err != nil {
				c.logger.Warn("heartbeat failed", zap.String("session", s.ID), zap.Error(err))
			}
		}
	}
}

// Shutdown deletes the hosted session or leaves the joined one, waiting at
// most ShutdownTimeout.
func (c *Client) Shutdown(ctx context.Context) error {
	s, err := c.leave()
	if errors.Is(err, ErrNotJoined) {
		return nil
	}

	ctx, cancel := c.bounded(ctx)
	defer cancel()

	if s.IsHost(c.cfg.PlayerID) {
		err = c.dir.Delete(ctx, s.ID)
	} else {
		err = c.dir.RemoveMember(ctx, s.ID, c.cfg.PlayerID)
	}
	if err != nil {
		c.logger.Warn("session cleanup failed", zap.String("session", s.ID), zap.Error(err))
		return fmt.Errorf("shutdown: %w", err)
	}
	c.logger.Info("session cleaned up", zap.String("session", s.ID))
	return nil
}

// Session returns the joined session.
func (c *Client) Session() (directory.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return directory.Session{}, false
	}
	return *c.session, true
}

func (c *Client) InSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// IsHost reports whether the local player hosts the joined session.
func (c *Client) IsHost() bool {
	s, ok := c.Session()
	return ok && s.IsHost(c.cfg.PlayerID)
}

func (c *Client) PlayerID() string { return c.cfg.PlayerID }

func (c *Client) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.gen
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// commit stores s as the joined session if gen is still current.
func (c *Client) commit(gen uint64, s directory.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.session = &s
	return true
}

// leave supersedes in-flight flows and forgets the joined session.
func (c *Client) leave() (directory.Session, error) {
	c.mu.Lock()
	c.gen++
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s == nil {
		return directory.Session{}, ErrNotJoined
	}
	c.SessionLeft.Publish(struct{}{})
	return *s, nil
}

// bounded limits ctx to ShutdownTimeout when one is set.
func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.ShutdownTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
}

func (c *Client) fail(bus *events.Bus[error], err error) error {
	c.logger.Warn("lobby request failed", zap.Error(err))
	bus.Publish(err)
	return err
}

// discard undoes a session this client created or joined but will not keep.
func (c *Client) discard(s directory.Session) {
	ctx, cancel := c.bounded(context.Background())
	defer cancel()

	var err error
	if s.IsHost(c.cfg.PlayerID) {
		err = c.dir.Delete(ctx, s.ID)
	} else {
		err = c.dir.RemoveMember(ctx, s.ID, c.cfg.PlayerID)
	}
	if err != nil {
		c.logger.Warn("could not discard session", zap.String("session", s.ID), zap.Error(err))
		return
	}
	c.logger.Info("discarded session", zap.String("session", s.ID))
}
