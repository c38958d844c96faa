// Package leveldata provides TMX kitchen layout parsing shared between host and
// clients. It has no dependencies on transports or ECS worlds.
package leveldata

import "github.com/leap-fish/necs/esync"

// Layout holds the entity owners placed in a kitchen map.
type Layout struct {
	Name      string
	Counters  []Counter
	MapWidth  int
	MapHeight int
}

// Counter is an in-scene object that can own a shared entity. Its network id
// is the TMX object id, so every participant agrees on it without a handshake.
type Counter struct {
	ID   esync.NetworkId
	Name string
	Kind string // "clear", "container", "cutting", "stove", "plates", "delivery", "trash"
	Item string // catalog entry a container counter hands out
	X, Y float64
}

// CounterByID returns the counter with the given network id.
func (l *Layout) CounterByID(id esync.NetworkId) (Counter, bool) {
	for _, c := range l.Counters {
		if c.ID == id {
			return c, true
		}
	}
	return Counter{}, false
}
