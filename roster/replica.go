package roster

import (
	"errors"
	"fmt"

	"github.com/automoto/kitchen-mp/events"
	"github.com/automoto/kitchen-mp/shared/messages"
)

// ErrVersionGap is returned when a diff skips versions. The replica is left
// untouched and should be resynced from a snapshot.
var ErrVersionGap = errors.New("roster: version gap")

// Replica is a read-only copy of the host's roster.
type Replica struct {
	records
	version uint64

	// Changed fires once per applied diff or snapshot.
	Changed events.Bus[messages.RosterChanged]
}

// NewReplica returns an empty replica at version 0.
func NewReplica() *Replica {
	return &Replica{}
}

// Version returns the last applied version.
func (r *Replica) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// ApplyChange applies a single diff. Diffs at or below the current version
// are ignored.
func (r *Replica) ApplyChange(c messages.RosterChanged) error {
	r.mu.Lock()
	if c.Version <= r.version {
		r.mu.Unlock()
		return nil
	}
	if c.Version != r.version+1 {
		have := r.version
		r.mu.Unlock()
		return fmt.Errorf("%w: have %d, got %d", ErrVersionGap, have, c.Version)
	}

	switch c.Op {
	case messages.RosterAdded:
		if r.indexOf(c.Record.Peer) >= 0 {
			r.mu.Unlock()
			return fmt.Errorf("roster: %s already listed", c.Record.Peer)
		}
		r.list = append(r.list, c.Record)
	case messages.RosterRemoved:
		i := r.indexOf(c.Record.Peer)
		if i < 0 {
			r.mu.Unlock()
			return fmt.Errorf("roster: remove unknown %s", c.Record.Peer)
		}
		r.list = append(r.list[:i], r.list[i+1:]...)
	case messages.RosterUpdated:
		i := r.indexOf(c.Record.Peer)
		if i < 0 {
			r.mu.Unlock()
			return fmt.Errorf("roster: update unknown %s", c.Record.Peer)
		}
		r.list[i] = c.Record
	default:
		r.mu.Unlock()
		return fmt.Errorf("roster: unexpected op %s", c.Op)
	}
	r.version = c.Version
	r.mu.Unlock()

	r.Changed.Publish(c)
	return nil
}

// ApplySnapshot replaces the replica's contents.
func (r *Replica) ApplySnapshot(s messages.RosterSnapshot) {
	r.mu.Lock()
	r.list = make([]messages.PlayerRecord, len(s.Records))
	copy(r.list, s.Records)
	r.version = s.Version
	r.mu.Unlock()

	r.Changed.Publish(messages.RosterChanged{Version: s.Version, Op: messages.RosterReset, Index: -1})
}
