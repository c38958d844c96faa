package network

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/automoto/kitchen-mp/shared/netconfig"
)

const memoryQueueSize = 1024

// Hub connects in-process host and client transports. Delivery is FIFO per
// connection, like a websocket, and each client's event queue doubles as its
// bounded outbound queue. It backs tests and single-process sessions.
type Hub struct {
	mu        sync.Mutex
	host      *MemoryHost
	listening bool
	nextPeer  int
}

func NewHub() *Hub {
	return &Hub{}
}

// Host returns the hub's host transport.
func (h *Hub) Host() *MemoryHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.host == nil {
		h.host = &MemoryHost{
			hub:    h,
			events: make(chan Event, memoryQueueSize),
			peers:  make(map[netconfig.PeerID]*MemoryClient),
		}
	}
	return h.host
}

// Client returns a new, unconnected client transport.
func (h *Hub) Client() *MemoryClient {
	return &MemoryClient{hub: h, events: make(chan Event, memoryQueueSize)}
}

// MemoryHost is the host end of a Hub.
type MemoryHost struct {
	hub    *Hub
	events chan Event

	mu         sync.Mutex
	configured bool
	peers      map[netconfig.PeerID]*MemoryClient
}

func (m *MemoryHost) Configure(d HostDescriptor) error {
	if d.AllocationID == "" {
		return fmt.Errorf("configure host: empty allocation")
	}
	m.mu.Lock()
	m.configured = true
	m.mu.Unlock()
	return nil
}

// Start begins accepting connections without blocking.
func (m *MemoryHost) Start() error {
	m.mu.Lock()
	configured := m.configured
	m.mu.Unlock()
	if !configured {
		return ErrNotConfigured
	}
	m.hub.mu.Lock()
	m.hub.listening = true
	m.hub.mu.Unlock()
	return nil
}

func (m *MemoryHost) Listen(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (m *MemoryHost) Events() <-chan Event { return m.events }

// Send queues msg on the peer's connection. A peer whose queue is full is
// dropped.
func (m *MemoryHost) Send(peer netconfig.PeerID, msg any) error {
	m.mu.Lock()
	c, ok := m.peers[peer]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	if c.offer(Event{Kind: EventMessage, Message: msg}) {
		return nil
	}

	m.mu.Lock()
	delete(m.peers, peer)
	m.mu.Unlock()
	c.drop(SlowPeerReason)
	return fmt.Errorf("%w: %s", ErrSlowPeer, peer)
}

func (m *MemoryHost) Disconnect(peer netconfig.PeerID, reason string) error {
	m.mu.Lock()
	c, ok := m.peers[peer]
	delete(m.peers, peer)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	c.drop(reason)
	return nil
}

// Peers returns the connected peers in order.
func (m *MemoryHost) Peers() []netconfig.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]netconfig.PeerID, 0, len(m.peers))
	for p := range m.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *MemoryHost) Close() error {
	m.hub.mu.Lock()
	m.hub.listening = false
	m.hub.mu.Unlock()

	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[netconfig.PeerID]*MemoryClient)
	m.mu.Unlock()

	for _, c := range peers {
		c.drop("")
	}
	return nil
}

// MemoryClient is a client end of a Hub.
type MemoryClient struct {
	hub    *Hub
	events chan Event

	mu         sync.Mutex
	configured bool
	peer       netconfig.PeerID
	connected  bool
}

func (c *MemoryClient) Configure(d ClientDescriptor) error {
	if d.AllocationID == "" {
		return fmt.Errorf("configure client: empty allocation")
	}
	c.mu.Lock()
	c.configured = true
	c.mu.Unlock()
	return nil
}

func (c *MemoryClient) Connect(_ context.Context) error {
	c.mu.Lock()
	configured := c.configured
	c.mu.Unlock()
	if !configured {
		return ErrNotConfigured
	}

	c.hub.mu.Lock()
	if !c.hub.listening || c.hub.host == nil {
		c.hub.mu.Unlock()
		c.events <- Event{Kind: EventDisconnected, Err: fmt.Errorf("no host listening")}
		return nil
	}
	c.hub.nextPeer++
	peer := netconfig.PeerID(fmt.Sprintf("peer-%d", c.hub.nextPeer))
	host := c.hub.host
	c.hub.mu.Unlock()

	c.mu.Lock()
	c.peer = peer
	c.connected = true
	c.mu.Unlock()

	host.mu.Lock()
	host.peers[peer] = c
	host.mu.Unlock()

	c.events <- Event{Kind: EventConnected}
	host.events <- Event{Kind: EventConnected, Peer: peer}
	return nil
}

func (c *MemoryClient) Events() <-chan Event { return c.events }

func (c *MemoryClient) Send(msg any) error {
	c.mu.Lock()
	peer, connected := c.peer, c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	c.hub.Host().events <- Event{Kind: EventMessage, Peer: peer, Message: msg}
	return nil
}

// Peer returns the id the host knows this client by.
func (c *MemoryClient) Peer() netconfig.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *MemoryClient) Close() error {
	c.mu.Lock()
	peer, connected := c.peer, c.connected
	c.connected = false
	c.mu.Unlock()
	if !connected {
		return nil
	}

	host := c.hub.Host()
	host.mu.Lock()
	_, known := host.peers[peer]
	delete(host.peers, peer)
	host.mu.Unlock()

	if known {
		host.events <- Event{Kind: EventDisconnected, Peer: peer}
	}
	c.deliver(Event{Kind: EventDisconnected})
	return nil
}

// drop is the host closing this connection.
func (c *MemoryClient) drop(reason string) {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()
	if was {
		c.deliver(Event{Kind: EventDisconnected, Reason: reason})
	}
}

// offer queues ev unless the client's queue is full.
func (c *MemoryClient) offer(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// deliver queues ev, waiting in the background while the queue is full so
// the caller never blocks.
func (c *MemoryClient) deliver(ev Event) {
	if !c.offer(ev) {
		go func() { c.events <- ev }()
	}
}
