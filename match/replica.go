package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/automoto/kitchen-mp/events"
	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netconfig"
)

// ErrVersionGap is returned when a state or pause diff skips versions.
var ErrVersionGap = errors.New("match: version gap")

// Replica follows the host's match state.
type Replica struct {
	mu            sync.RWMutex
	state         netconfig.MatchStateID
	countdown     time.Duration
	playRemaining time.Duration
	playDuration  time.Duration
	paused        bool
	version       uint64

	StateChanged        events.Bus[messages.MatchStateChanged]
	MultiplayerPaused   events.Bus[struct{}]
	MultiplayerUnpaused events.Bus[struct{}]
}

// NewReplica returns a replica waiting to start with the given defaults.
func NewReplica(cfg Config) *Replica {
	return &Replica{
		state:        netconfig.MatchStateWaiting,
		countdown:    cfg.CountdownDuration,
		playDuration: cfg.MatchDuration,
	}
}

// Version returns the last applied version.
func (r *Replica) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// ApplyStateChanged applies a phase transition.
func (r *Replica) ApplyStateChanged(msg messages.MatchStateChanged) error {
	r.mu.Lock()
	if err := r.checkVersion(msg.Version); err != nil || msg.Version <= r.version {
		r.mu.Unlock()
		return err
	}
	r.version = msg.Version
	r.state = msg.State
	r.countdown = msg.Countdown
	r.playRemaining = msg.PlayRemaining
	r.playDuration = msg.PlayDuration
	r.mu.Unlock()

	r.StateChanged.Publish(msg)
	return nil
}

// ApplyPauseChanged applies an edge of the aggregated pause flag.
func (r *Replica) ApplyPauseChanged(msg messages.PauseChanged) error {
	r.mu.Lock()
	if err := r.checkVersion(msg.Version); err != nil || msg.Version <= r.version {
		r.mu.Unlock()
		return err
	}
	r.version = msg.Version
	changed := r.paused != msg.Paused
	r.paused = msg.Paused
	r.mu.Unlock()

	if changed {
		r.publishPause(msg.Paused)
	}
	return nil
}

// ApplyTimers refreshes the running timers. Timers stamped with another
// version than the replica's are stale and ignored.
func (r *Replica) ApplyTimers(msg messages.MatchTimers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.Version != r.version {
		return
	}
	r.countdown = msg.Countdown
	r.playRemaining = msg.PlayRemaining
}

// ApplySnapshot replaces the replica's state and publishes whatever changed.
func (r *Replica) ApplySnapshot(s messages.MatchSnapshot) {
	r.mu.Lock()
	prev := r.state
	wasPaused := r.paused
	r.version = s.Version
	r.state = s.State
	r.countdown = s.Countdown
	r.playRemaining = s.PlayRemaining
	r.playDuration = s.PlayDuration
	r.paused = s.Paused
	r.mu.Unlock()

	if prev != s.State {
		r.StateChanged.Publish(messages.MatchStateChanged{
			Version:       s.Version,
			Previous:      prev,
			State:         s.State,
			Countdown:     s.Countdown,
			PlayRemaining: s.PlayRemaining,
			PlayDuration:  s.PlayDuration,
		})
	}
	if wasPaused != s.Paused {
		r.publishPause(s.Paused)
	}
}

// Advance runs the local timers down between host syncs. It never changes
// the phase.
func (r *Replica) Advance(dt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return
	}
	switch r.state {
	case netconfig.MatchStateCountdown:
		r.countdown = max(r.countdown-dt, 0)
	case netconfig.MatchStatePlaying:
		r.playRemaining = max(r.playRemaining-dt, 0)
	}
}

func (r *Replica) State() netconfig.MatchStateID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Replica) IsWaitingToStart() bool  { return r.State() == netconfig.MatchStateWaiting }
func (r *Replica) IsCountdownActive() bool { return r.State() == netconfig.MatchStateCountdown }
func (r *Replica) IsPlaying() bool         { return r.State() == netconfig.MatchStatePlaying }
func (r *Replica) IsGameOver() bool        { return r.State() == netconfig.MatchStateGameOver }

// CountdownRemaining returns the time left before play starts.
func (r *Replica) CountdownRemaining() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countdown
}

// PlayRemaining returns the time left in the match.
func (r *Replica) PlayRemaining() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playRemaining
}

// PlayTimeNormalized returns match progress in [0,1]: 1 - remaining/max.
func (r *Replica) PlayTimeNormalized() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case r.state == netconfig.MatchStateGameOver:
		return 1
	case r.state != netconfig.MatchStatePlaying || r.playDuration <= 0:
		return 0
	}
	return 1 - float64(r.playRemaining)/float64(r.playDuration)
}

// IsPaused reports the aggregated pause flag.
func (r *Replica) IsPaused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// TimeScale is 0 while the session is paused and 1 otherwise.
func (r *Replica) TimeScale() float64 {
	if r.IsPaused() {
		return 0
	}
	return 1
}

func (r *Replica) checkVersion(v uint64) error {
	if v > r.version+1 {
		return fmt.Errorf("%w: have %d, got %d", ErrVersionGap, r.version, v)
	}
	return nil
}

func (r *Replica) publishPause(paused bool) {
	if paused {
		r.MultiplayerPaused.Publish(struct{}{})
	} else {
		r.MultiplayerUnpaused.Publish(struct{}{})
	}
}
