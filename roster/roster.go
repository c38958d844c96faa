// Package roster keeps the ordered list of connected players. The host owns a
// Roster and every participant, host included, follows it through a Replica.
package roster

import (
	"sync"

	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/leap-fish/necs/esync"
)

// records holds the lookups shared by Roster and Replica.
type records struct {
	mu   sync.RWMutex
	list []messages.PlayerRecord
}

// Len returns the number of players.
func (r *records) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

// At returns the record at position index. Positions drive fixed UI slots.
func (r *records) At(index int) (messages.PlayerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.list) {
		return messages.PlayerRecord{}, false
	}
	return r.list[index], true
}

// IsPlayerConnected reports whether a player occupies position index.
func (r *records) IsPlayerConnected(index int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return index >= 0 && index < len(r.list)
}

// ByPeer returns the record for peer and its position.
func (r *records) ByPeer(peer netconfig.PeerID) (messages.PlayerRecord, int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(peer)
	if i < 0 {
		return messages.PlayerRecord{}, -1, false
	}
	return r.list[i], i, true
}

// Records returns a copy of the roster in order.
func (r *records) Records() []messages.PlayerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]messages.PlayerRecord, len(r.list))
	copy(out, r.list)
	return out
}

func (r *records) indexOf(peer netconfig.PeerID) int {
	for i, rec := range r.list {
		if rec.Peer == peer {
			return i
		}
	}
	return -1
}

func (r *records) colorTaken(color int, except netconfig.PeerID) bool {
	for _, rec := range r.list {
		if rec.ColorIndex == color && rec.Peer != except {
			return true
		}
	}
	return false
}

// Roster is the host's canonical roster. Each mutation returns the diff to
// broadcast. It is not meant to be shared between goroutines: the host loop is
// its only writer.
type Roster struct {
	records
	version uint64
	colors  int
}

// New creates an empty roster over the shared color palette.
func New() *Roster {
	return &Roster{colors: netconfig.ColorCount()}
}

// Add appends a record for peer with the first free color. holder is the
// entity owner standing for the player. It returns false when peer is already
// listed.
func (r *Roster) Add(peer netconfig.PeerID, playerID, name string, holder esync.NetworkId) (messages.RosterChanged, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(peer) >= 0 {
		return messages.RosterChanged{}, false
	}

	rec := messages.PlayerRecord{
		Peer:       peer,
		PlayerID:   playerID,
		ColorIndex: r.firstUnusedColor(),
		Name:       name,
		Holder:     holder,
	}
	r.list = append(r.list, rec)
	return r.change(messages.RosterAdded, len(r.list)-1, rec), true
}

// Remove drops peer's record. Unknown peers are a no-op.
func (r *Roster) Remove(peer netconfig.PeerID) (messages.RosterChanged, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(peer)
	if i < 0 {
		return messages.RosterChanged{}, false
	}
	rec := r.list[i]
	r.list = append(r.list[:i], r.list[i+1:]...)
	return r.change(messages.RosterRemoved, i, rec), true
}

// ChangeColor recolors peer's record. Out-of-range colors, colors held by
// another player and unknown peers are dropped.
func (r *Roster) ChangeColor(peer netconfig.PeerID, color int) (messages.RosterChanged, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if color < 0 || color >= r.colors {
		return messages.RosterChanged{}, false
	}
	i := r.indexOf(peer)
	if i < 0 || r.list[i].ColorIndex == color || r.colorTaken(color, peer) {
		return messages.RosterChanged{}, false
	}
	r.list[i].ColorIndex = color
	return r.change(messages.RosterUpdated, i, r.list[i]), true
}

// Snapshot returns the full roster at the current version.
func (r *Roster) Snapshot() messages.RosterSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]messages.PlayerRecord, len(r.list))
	copy(out, r.list)
	return messages.RosterSnapshot{Version: r.version, Records: out}
}

func (r *Roster) firstUnusedColor() int {
	for c := 0; c < r.colors; c++ {
		if !r.colorTaken(c, "") {
			return c
		}
	}
	return netconfig.NoColor
}

func (r *Roster) change(op messages.RosterOp, index int, rec messages.PlayerRecord) messages.RosterChanged {
	r.version++
	return messages.RosterChanged{Version: r.version, Op: op, Index: index, Record: rec}
}
