// Package match runs the match phase state machine. The host drives a Machine
// and broadcasts what it returns; every participant follows it with a Replica.
package match

import (
	"time"

	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netconfig"
)

// Config holds the match timings.
type Config struct {
	CountdownDuration time.Duration
	MatchDuration     time.Duration
	// TimerSyncInterval is how often running timers are rebroadcast.
	TimerSyncInterval time.Duration
}

// DefaultConfig returns the standard timings: 3s countdown, 300s match.
func DefaultConfig() Config {
	return Config{
		CountdownDuration: 3 * time.Second,
		MatchDuration:     300 * time.Second,
		TimerSyncInterval: 250 * time.Millisecond,
	}
}

// Machine is the host-side match state. It is owned by the host loop and must
// not be shared between goroutines.
//
// Every method returns the messages to broadcast, in order. A nil result means
// nothing observable changed.
type Machine struct {
	cfg Config

	state         netconfig.MatchStateID
	countdown     time.Duration
	playRemaining time.Duration
	paused        bool
	version       uint64
	sinceSync     time.Duration

	connected map[netconfig.PeerID]bool
	ready     map[netconfig.PeerID]bool
	pause     map[netconfig.PeerID]bool
}

// NewMachine returns a machine waiting to start.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:       cfg,
		state:     netconfig.MatchStateWaiting,
		countdown: cfg.CountdownDuration,
		connected: make(map[netconfig.PeerID]bool),
		ready:     make(map[netconfig.PeerID]bool),
		pause:     make(map[netconfig.PeerID]bool),
	}
}

// State returns the current phase.
func (m *Machine) State() netconfig.MatchStateID { return m.state }

// Paused reports the aggregated pause flag.
func (m *Machine) Paused() bool { return m.paused }

// Connect adds peer to the set whose votes count. A new peer has no ready
// vote, so it holds the match in WaitingToStart until it readies.
func (m *Machine) Connect(peer netconfig.PeerID) {
	m.connected[peer] = true
}

// Disconnect drops peer and its votes, then re-evaluates pause and readiness.
func (m *Machine) Disconnect(peer netconfig.PeerID) []any {
	if !m.connected[peer] {
		return nil
	}
	delete(m.connected, peer)
	delete(m.ready, peer)
	delete(m.pause, peer)

	out := m.recomputePause()
	return append(out, m.evaluateReady()...)
}

// Ready records peer's ready vote. Votes only count while waiting to start;
// repeating a vote changes nothing.
func (m *Machine) Ready(peer netconfig.PeerID) []any {
	if m.state != netconfig.MatchStateWaiting || !m.connected[peer] {
		return nil
	}
	m.ready[peer] = true
	return m.evaluateReady()
}

// IsReady reports peer's ready vote.
func (m *Machine) IsReady(peer netconfig.PeerID) bool {
	return m.ready[peer]
}

// SetPause records peer's pause vote and recomputes the aggregate.
func (m *Machine) SetPause(peer netconfig.PeerID, paused bool) []any {
	if !m.connected[peer] {
		return nil
	}
	if paused {
		m.pause[peer] = true
	} else {
		delete(m.pause, peer)
	}
	return m.recomputePause()
}

// Tick advances the running timer by dt. Timers are frozen while paused.
func (m *Machine) Tick(dt time.Duration) []any {
	if m.paused {
		return nil
	}

	var out []any
	switch m.state {
	case netconfig.MatchStateWaiting:
		return m.evaluateReady()

	case netconfig.MatchStateCountdown:
		m.countdown -= dt
		if m.countdown <= 0 {
			m.countdown = 0
			m.playRemaining = m.cfg.MatchDuration
			return append(out, m.transition(netconfig.MatchStatePlaying))
		}

	case netconfig.MatchStatePlaying:
		m.playRemaining -= dt
		if m.playRemaining <= 0 {
			m.playRemaining = 0
			return append(out, m.transition(netconfig.MatchStateGameOver))
		}

	default:
		return nil
	}

	m.sinceSync += dt
	if m.sinceSync >= m.cfg.TimerSyncInterval {
		m.sinceSync = 0
		out = append(out, messages.MatchTimers{
			Version:       m.version,
			Countdown:     m.countdown,
			PlayRemaining: m.playRemaining,
		})
	}
	return out
}

// Snapshot returns the full replicated state.
func (m *Machine) Snapshot() messages.MatchSnapshot {
	return messages.MatchSnapshot{
		Version:       m.version,
		State:         m.state,
		Countdown:     m.countdown,
		PlayRemaining: m.playRemaining,
		PlayDuration:  m.cfg.MatchDuration,
		Paused:        m.paused,
	}
}

func (m *Machine) evaluateReady() []any {
	if m.state != netconfig.MatchStateWaiting || len(m.connected) == 0 {
		return nil
	}
	for peer := range m.connected {
		if !m.ready[peer] {
			return nil
		}
	}
	m.countdown = m.cfg.CountdownDuration
	return []any{m.transition(netconfig.MatchStateCountdown)}
}

func (m *Machine) recomputePause() []any {
	paused := false
	for peer, p := range m.pause {
		if p && m.connected[peer] {
			paused = true
			break
		}
	}
	if paused == m.paused {
		return nil
	}
	m.paused = paused
	m.version++
	return []any{messages.PauseChanged{Version: m.version, Paused: paused}}
}

func (m *Machine) transition(next netconfig.MatchStateID) messages.MatchStateChanged {
	prev := m.state
	m.state = next
	m.sinceSync = 0
	m.version++
	return messages.MatchStateChanged{
		Version:       m.version,
		Previous:      prev,
		State:         next,
		Countdown:     m.countdown,
		PlayRemaining: m.playRemaining,
		PlayDuration:  m.cfg.MatchDuration,
	}
}
