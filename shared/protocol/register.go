package protocol

import (
	"sync"

	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/leap-fish/necs/router"
)

// Delivery receives a decoded message with the connection it arrived on.
type Delivery func(sender *router.NetworkClient, msg any)

var (
	registerOnce sync.Once

	mu         sync.RWMutex
	nextID     int
	deliveries = make(map[int]Delivery)
)

// Attach adds deliver to the receivers of every decoded message and returns
// a func that removes it again. necs keeps routes process-wide, so a host and
// its clients running in one process share them; deliveries filter on sender.
func Attach(deliver Delivery) (detach func()) {
	registerOnce.Do(register)

	mu.Lock()
	id := nextID
	nextID++
	deliveries[id] = deliver
	mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			delete(deliveries, id)
			mu.Unlock()
		})
	}
}

func dispatch(sender *router.NetworkClient, msg any) {
	mu.RLock()
	receivers := make([]Delivery, 0, len(deliveries))
	for _, d := range deliveries {
		receivers = append(receivers, d)
	}
	mu.RUnlock()

	for _, d := range receivers {
		d(sender, msg)
	}
}

func register() {
	// client to host
	route[messages.JoinRequest]()
	route[messages.ResyncRequest]()
	route[messages.ReadyRequest]()
	route[messages.PauseRequest]()
	route[messages.ChangeColorRequest]()
	route[messages.SpawnRequest]()
	route[messages.DestroyRequest]()
	route[messages.TransferRequest]()

	// host to client
	route[messages.JoinAccepted]()
	route[messages.JoinRejected]()
	route[messages.Kicked]()
	route[messages.RosterChanged]()
	route[messages.RosterSnapshot]()
	route[messages.MatchStateChanged]()
	route[messages.MatchTimers]()
	route[messages.PauseChanged]()
	route[messages.MatchSnapshot]()
	route[messages.EntitySpawned]()
	route[messages.OwnershipChanged]()
	route[messages.ClearOwnership]()
	route[messages.EntityDestroyed]()
	route[messages.EntitySnapshot]()
}

func route[T any]() {
	router.On(func(sender *router.NetworkClient, msg T) {
		dispatch(sender, msg)
	})
}
