package messages

import (
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/leap-fish/necs/esync"
)

// PlayerRecord is one roster entry.
type PlayerRecord struct {
	Peer       netconfig.PeerID
	PlayerID   string
	ColorIndex int
	Name       string
	Holder     esync.NetworkId // the player's entity owner id, 0 until assigned
}

// RosterOp says how a roster diff changed the collection.
type RosterOp int

const (
	RosterAdded RosterOp = iota
	RosterRemoved
	RosterUpdated
	RosterReset // a snapshot replaced the whole roster
)

func (o RosterOp) String() string {
	switch o {
	case RosterAdded:
		return "added"
	case RosterRemoved:
		return "removed"
	case RosterUpdated:
		return "updated"
	case RosterReset:
		return "reset"
	}
	return "unknown"
}

// RosterChanged is a single versioned roster mutation. Index is the record's
// position before removal (Removed) or after insertion/update.
type RosterChanged struct {
	Version uint64
	Op      RosterOp
	Index   int
	Record  PlayerRecord
}

// RosterSnapshot replaces a replica's roster wholesale (join, resync).
type RosterSnapshot struct {
	Version uint64
	Records []PlayerRecord
}

// ChangeColorRequest asks the host to recolor the sender's record.
type ChangeColorRequest struct {
	ColorIndex int
}
