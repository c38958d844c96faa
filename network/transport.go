package network

import (
	"context"
	"errors"

	"github.com/automoto/kitchen-mp/shared/netconfig"
)

var (
	ErrNotConfigured = errors.New("transport not configured")
	ErrNotConnected  = errors.New("not connected")
	ErrUnknownPeer   = errors.New("unknown peer")
	ErrSlowPeer      = errors.New("peer send queue full")
)

// SlowPeerReason is the close reason given to a peer dropped for not keeping
// up with the host.
const SlowPeerReason = "Connection too slow"

// EventKind classifies transport events.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	}
	return "unknown"
}

// Event is raised by a transport. Peer is empty on the client side, where the
// only peer is the host.
type Event struct {
	Kind    EventKind
	Peer    netconfig.PeerID
	Message any
	Reason  string
	Err     error
}

// HostDescriptor tells a host transport where to listen. It comes from a
// relay allocation.
type HostDescriptor struct {
	AllocationID string
	ListenPort   uint
}

// ClientDescriptor tells a client transport where to connect. It is resolved
// from a relay join code.
type ClientDescriptor struct {
	AllocationID string
	Address      string
}

// HostTransport is the host side of a session connection.
//
// Send and Disconnect are called from the game loop and never block on a
// peer. Each peer has a bounded outbound queue; a peer whose queue is full is
// disconnected and Send returns ErrSlowPeer. Peers the host disconnects itself
// raise no EventDisconnected.
type HostTransport interface {
	Configure(HostDescriptor) error
	// Listen accepts connections until ctx is done or the transport fails.
	// It stops accepting and releases the listener before returning.
	Listen(ctx context.Context) error
	Events() <-chan Event
	Send(peer netconfig.PeerID, msg any) error
	Disconnect(peer netconfig.PeerID, reason string) error
	Close() error
}

// ClientTransport is the client side of a session connection.
type ClientTransport interface {
	Configure(ClientDescriptor) error
	// Connect starts connecting. The outcome arrives as an event.
	Connect(ctx context.Context) error
	Events() <-chan Event
	Send(msg any) error
	Close() error
}
