// Package participant holds everything a session participant replicates from
// the host and applies host messages through a single entry point.
package participant

import (
	"errors"
	"fmt"
	"sync"

	"github.com/automoto/kitchen-mp/events"
	"github.com/automoto/kitchen-mp/match"
	"github.com/automoto/kitchen-mp/replication"
	"github.com/automoto/kitchen-mp/roster"
	"github.com/automoto/kitchen-mp/shared/messages"
)

// ErrUnhandled is returned for messages that carry no replicated state.
var ErrUnhandled = errors.New("participant: message not replicated")

// State is one participant's replica of the session.
type State struct {
	Roster   *roster.Replica
	Match    *match.Replica
	Entities *replication.View

	// ResyncNeeded fires once when a diff was missed. It fires again only
	// after a snapshot has been applied.
	ResyncNeeded events.Bus[struct{}]

	mu        sync.Mutex
	resyncing bool
}

// NewState returns an empty replica using the given match timings.
func NewState(cfg match.Config) *State {
	return &State{
		Roster:   roster.NewReplica(),
		Match:    match.NewReplica(cfg),
		Entities: replication.NewView(),
	}
}

// Apply applies one host message and notifies subscribers. A missed diff is
// reported as an error wrapping the replica's ErrVersionGap after
// ResyncNeeded fired.
func (s *State) Apply(msg any) error {
	var err error
	switch m := msg.(type) {
	case messages.RosterChanged:
		err = s.Roster.ApplyChange(m)
	case messages.RosterSnapshot:
		s.Roster.ApplySnapshot(m)
		s.resynced()
	case messages.MatchStateChanged:
		err = s.Match.ApplyStateChanged(m)
	case messages.PauseChanged:
		err = s.Match.ApplyPauseChanged(m)
	case messages.MatchTimers:
		s.Match.ApplyTimers(m)
	case messages.MatchSnapshot:
		s.Match.ApplySnapshot(m)
		s.resynced()
	case messages.EntitySpawned:
		s.Entities.ApplySpawned(m)
	case messages.OwnershipChanged:
		s.Entities.ApplyOwnershipChanged(m)
	case messages.ClearOwnership:
		s.Entities.ApplyClearOwnership(m)
	case messages.EntityDestroyed:
		s.Entities.ApplyDestroyed(m)
	case messages.EntitySnapshot:
		s.Entities.ApplySnapshot(m)
	default:
		return fmt.Errorf("%w: %T", ErrUnhandled, msg)
	}

	if errors.Is(err, roster.ErrVersionGap) || errors.Is(err, match.ErrVersionGap) {
		s.requestResync()
	}
	return err
}

func (s *State) requestResync() {
	s.mu.Lock()
	if s.resyncing {
		s.mu.Unlock()
		return
	}
	s.resyncing = true
	s.mu.Unlock()

	s.ResyncNeeded.Publish(struct{}{})
}

func (s *State) resynced() {
	s.mu.Lock()
	s.resyncing = false
	s.mu.Unlock()
}
