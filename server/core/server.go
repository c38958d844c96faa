package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/automoto/kitchen-mp/catalog"
	"github.com/automoto/kitchen-mp/match"
	"github.com/automoto/kitchen-mp/network"
	"github.com/automoto/kitchen-mp/participant"
	"github.com/automoto/kitchen-mp/replication"
	"github.com/automoto/kitchen-mp/roster"
	"github.com/automoto/kitchen-mp/shared/leveldata"
	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/jonboulle/clockwork"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
	"go.uber.org/zap"
)

var (
	ErrAlreadyStarted = errors.New("host already started")
	ErrCannotKickHost = errors.New("cannot kick the host")
)

// SceneLoader is the presentation boundary: the host asks it to load a scene
// and every participant follows.
type SceneLoader interface {
	LoadScene(scene netconfig.SceneID)
}

// Config configures a hosted session.
type Config struct {
	SessionName string
	Version     string // required client version, empty accepts any
	MaxPlayers  int
	TickRate    int
	Match       match.Config
}

// Server is the authoritative host of a session. It owns the roster, the
// match state machine and the entity authority. All of them are only touched
// from the goroutine calling Handle, Tick and Submit's consumer, which is the
// game loop once Run is called.
type Server struct {
	cfg       Config
	logger    *zap.Logger
	clock     clockwork.Clock
	transport network.HostTransport
	scenes    SceneLoader

	roster   *roster.Roster
	match    *match.Machine
	entities *replication.Authority
	local    *participant.State

	scene    netconfig.SceneID
	started  bool
	admitted map[netconfig.PeerID]bool
	holders  map[netconfig.PeerID]esync.NetworkId
	stalled  map[netconfig.PeerID]bool

	loop      *GameLoop
	inbox     chan any
	listenErr chan error
}

// NewServer creates a host. The host's own player is seated by StartHost.
func NewServer(cfg Config, transport network.HostTransport, cat *catalog.Catalog, scenes SceneLoader, clock clockwork.Clock, logger *zap.Logger) *Server {
	logger = logger.Named("core")
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		clock:     clock,
		transport: transport,
		scenes:    scenes,
		roster:    roster.New(),
		match:     match.NewMachine(cfg.Match),
		entities:  replication.NewAuthority(donburi.NewWorld(), cat, logger),
		local:     participant.NewState(cfg.Match),
		scene:     netconfig.SceneLoading,
		admitted:  make(map[netconfig.PeerID]bool),
		holders:   make(map[netconfig.PeerID]esync.NetworkId),
		stalled:   make(map[netconfig.PeerID]bool),
		inbox:     make(chan any, 64),
		listenErr: make(chan error, 1),
	}
	s.loop = NewGameLoop(s, cfg.TickRate, clock, logger)
	return s
}

// LoadLayout registers every counter of a kitchen layout as an entity owner.
func (s *Server) LoadLayout(layout *leveldata.Layout) error {
	for _, c := range layout.Counters {
		if err := s.entities.RegisterParent(c.ID, c.Kind); err != nil {
			return fmt.Errorf("layout %s: %w", layout.Name, err)
		}
	}
	return nil
}

// RegisterParent adds a fixed entity owner placed by the scene.
func (s *Server) RegisterParent(id esync.NetworkId, kind string) error {
	return s.entities.RegisterParent(id, kind)
}

// StartHost seats the host player, loads the pre-game scene and starts the
// transport listening in the background. Admission control applies from
// then on.
func (s *Server) StartHost(ctx context.Context, playerID, playerName string) error {
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.seat(netconfig.HostPeer, playerID, playerName)
	s.loadScene(netconfig.SceneCharacterSelect)

	go func() {
		s.listenErr <- s.transport.Listen(ctx)
	}()
	s.logger.Info("hosting session",
		zap.String("session", s.cfg.SessionName),
		zap.Int("maxPlayers", s.cfg.MaxPlayers))
	return nil
}

// Run drives the session until ctx is done or the transport fails.
func (s *Server) Run(ctx context.Context) error {
	return s.loop.Run(ctx)
}

// Submit queues a request from the host's own player for the game loop.
func (s *Server) Submit(msg any) {
	s.inbox <- msg
}

// Handle applies one transport event.
func (s *Server) Handle(ev network.Event) {
	defer s.dropStalled()

	switch ev.Kind {
	case network.EventConnected:
		s.logger.Info("peer connected", zap.String("peer", string(ev.Peer)))
	case network.EventDisconnected:
		s.logger.Info("peer disconnected", zap.String("peer", string(ev.Peer)), zap.Error(ev.Err))
		s.cleanup(ev.Peer)
	case network.EventMessage:
		if join, ok := ev.Message.(messages.JoinRequest); ok {
			s.admit(ev.Peer, join)
			return
		}
		if !s.admitted[ev.Peer] {
			s.logger.Debug("dropping message from unadmitted peer", zap.String("peer", string(ev.Peer)))
			return
		}
		s.request(ev.Peer, ev.Message)
	}
}

// kickCommand asks the game loop to kick a player by directory id.
type kickCommand struct {
	playerID string
}

// SubmitKick queues KickPlayer for the game loop.
func (s *Server) SubmitKick(playerID string) {
	s.inbox <- kickCommand{playerID: playerID}
}

// HandleLocal applies a request from the host's own player immediately.
func (s *Server) HandleLocal(msg any) {
	defer s.dropStalled()

	if k, ok := msg.(kickCommand); ok {
		if err := s.KickPlayer(k.playerID); err != nil {
			s.logger.Warn("kick failed", zap.String("player", k.playerID), zap.Error(err))
		}
		return
	}
	s.request(netconfig.HostPeer, msg)
}

// Tick advances the match by dt.
func (s *Server) Tick(dt time.Duration) {
	s.broadcastMatch(s.match.Tick(dt))
	s.dropStalled()
}

// Kick removes a player. The peer is told why, disconnected, and cleaned up
// right away; the transport raises no event for it.
func (s *Server) Kick(peer netconfig.PeerID) error {
	if peer == netconfig.HostPeer {
		return ErrCannotKickHost
	}
	if !s.admitted[peer] {
		return fmt.Errorf("%w: %s", network.ErrUnknownPeer, peer)
	}
	if err := s.transport.Send(peer, messages.Kicked{Reason: netconfig.KickedReason}); err != nil {
		s.logger.Warn("kick notice failed", zap.String("peer", string(peer)), zap.Error(err))
	}
	if err := s.transport.Disconnect(peer, netconfig.KickedReason); err != nil {
		s.logger.Warn("kick disconnect failed", zap.String("peer", string(peer)), zap.Error(err))
	}
	s.cleanup(peer)
	s.dropStalled()
	return nil
}

// KickPlayer kicks the peer whose record carries the directory player id.
func (s *Server) KickPlayer(playerID string) error {
	for _, rec := range s.roster.Records() {
		if rec.PlayerID == playerID {
			return s.Kick(rec.Peer)
		}
	}
	return fmt.Errorf("%w: player %s", network.ErrUnknownPeer, playerID)
}

// Close disconnects everyone.
func (s *Server) Close() error {
	return s.transport.Close()
}

// Local returns the host player's replicated view, fed by the same messages
// the clients receive.
func (s *Server) Local() *participant.State { return s.local }

// Scene returns the scene the session is in.
func (s *Server) Scene() netconfig.SceneID { return s.scene }

// PlayerCount returns the number of seated players, host included.
func (s *Server) PlayerCount() int { return s.roster.Len() }

// Holder returns the entity owner id standing for peer.
func (s *Server) Holder(peer netconfig.PeerID) (esync.NetworkId, bool) {
	id, ok := s.holders[peer]
	return id, ok
}

// admission returns why a new player cannot join, or "" to approve.
func (s *Server) admission() string {
	if s.scene != netconfig.SceneCharacterSelect {
		return netconfig.RejectGameStarted
	}
	if s.roster.Len() >= s.cfg.MaxPlayers {
		return netconfig.RejectGameFull
	}
	return ""
}

func (s *Server) admit(peer netconfig.PeerID, req messages.JoinRequest) {
	if s.admitted[peer] {
		return
	}

	reason := s.admission()
	if reason == "" && s.cfg.Version != "" && req.Version != s.cfg.Version {
		reason = netconfig.RejectVersion
	}
	if reason != "" {
		s.logger.Info("join rejected", zap.String("peer", string(peer)), zap.String("reason", reason))
		if err := s.transport.Send(peer, messages.JoinRejected{Reason: reason}); err != nil {
			s.logger.Warn("reject notice failed", zap.Error(err))
		}
		if err := s.transport.Disconnect(peer, reason); err != nil {
			s.logger.Warn("reject disconnect failed", zap.Error(err))
		}
		return
	}

	s.seat(peer, req.PlayerID, req.PlayerName)

	s.send(peer, messages.JoinAccepted{
		Peer:        peer,
		SessionName: s.cfg.SessionName,
		TickRate:    s.cfg.TickRate,
	})
	s.sendSnapshots(peer)
	s.logger.Info("player joined",
		zap.String("peer", string(peer)),
		zap.String("name", req.PlayerName),
		zap.Int("players", s.roster.Len()))
}

// seat adds a player to every piece of session state and tells the players
// already seated.
func (s *Server) seat(peer netconfig.PeerID, playerID, name string) {
	holder := s.entities.AddParent("player")
	change, ok := s.roster.Add(peer, playerID, name, holder)
	if !ok {
		s.entities.RemoveParent(holder)
		return
	}
	s.holders[peer] = holder
	s.match.Connect(peer)
	s.broadcast(change)
	s.admitted[peer] = true
}

func (s *Server) cleanup(peer netconfig.PeerID) {
	if !s.admitted[peer] {
		return
	}
	delete(s.admitted, peer)

	if change, ok := s.roster.Remove(peer); ok {
		s.broadcast(change)
	}
	s.broadcastMatch(s.match.Disconnect(peer))
	if holder, ok := s.holders[peer]; ok {
		delete(s.holders, peer)
		s.broadcastAll(s.entities.RemoveParent(holder))
	}
}

func (s *Server) request(peer netconfig.PeerID, msg any) {
	switch m := msg.(type) {
	case messages.ResyncRequest:
		s.sendSnapshots(peer)
	case messages.ReadyRequest:
		s.broadcastMatch(s.match.Ready(peer))
	case messages.PauseRequest:
		s.broadcastMatch(s.match.SetPause(peer, m.Paused))
	case messages.ChangeColorRequest:
		if change, ok := s.roster.ChangeColor(peer, m.ColorIndex); ok {
			s.broadcast(change)
		}
	case messages.SpawnRequest:
		if spawned, ok := s.entities.Spawn(m); ok {
			s.broadcast(spawned)
		}
	case messages.DestroyRequest:
		if out, ok := s.entities.Destroy(m); ok {
			s.broadcastAll(out)
		}
	case messages.TransferRequest:
		if changed, ok := s.entities.Transfer(m); ok {
			s.broadcast(changed)
		}
	default:
		s.logger.Debug("unexpected request", zap.String("peer", string(peer)), zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (s *Server) broadcastMatch(msgs []any) {
	for _, msg := range msgs {
		s.broadcast(msg)
		if sc, ok := msg.(messages.MatchStateChanged); ok && sc.State == netconfig.MatchStateCountdown {
			s.loadScene(netconfig.SceneGame)
		}
	}
}

func (s *Server) broadcastAll(msgs []any) {
	for _, msg := range msgs {
		s.broadcast(msg)
	}
}

// broadcast applies msg to the host's own view, then sends it to every
// remote player in the session.
func (s *Server) broadcast(msg any) {
	if err := s.local.Apply(msg); err != nil && !errors.Is(err, participant.ErrUnhandled) {
		s.logger.Error("local apply failed", zap.Error(err))
	}
	for peer := range s.admitted {
		if peer == netconfig.HostPeer || s.stalled[peer] {
			continue
		}
		s.send(peer, msg)
	}
}

func (s *Server) send(peer netconfig.PeerID, msg any) {
	err := s.transport.Send(peer, msg)
	switch {
	case err == nil:
	case errors.Is(err, network.ErrSlowPeer):
		if !s.stalled[peer] {
			s.logger.Warn("peer fell behind, dropping", zap.String("peer", string(peer)))
		}
		s.stalled[peer] = true
	default:
		s.logger.Warn("send failed", zap.String("peer", string(peer)), zap.Error(err))
	}
}

// dropStalled cleans up peers the transport dropped for falling behind.
// Cleanup broadcasts can stall further peers, so it runs until none are left.
func (s *Server) dropStalled() {
	for len(s.stalled) > 0 {
		for peer := range s.stalled {
			delete(s.stalled, peer)
			s.cleanup(peer)
		}
	}
}

func (s *Server) sendSnapshots(peer netconfig.PeerID) {
	if peer == netconfig.HostPeer {
		return
	}
	s.send(peer, s.roster.Snapshot())
	s.send(peer, s.match.Snapshot())
	s.send(peer, s.entities.Snapshot())
}

func (s *Server) loadScene(scene netconfig.SceneID) {
	if s.scene == scene {
		return
	}
	s.scene = scene
	s.logger.Info("loading scene", zap.Stringer("scene", scene))
	if s.scenes != nil {
		s.scenes.LoadScene(scene)
	}
}
