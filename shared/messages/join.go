package messages

import "github.com/automoto/kitchen-mp/shared/netconfig"

// JoinRequest is sent by a client right after its transport connects. The host
// runs admission control on it.
type JoinRequest struct {
	Version    string
	PlayerName string
	PlayerID   string // directory identity, used by the host to kick
}

// JoinAccepted is sent by the host when a client passes admission control.
type JoinAccepted struct {
	Peer        netconfig.PeerID
	SessionName string
	TickRate    int
}

// JoinRejected is sent by the host when admission control denies a client.
// The connection is closed right after.
type JoinRejected struct {
	Reason string
}

// Kicked is sent to a player the host removes from the session.
type Kicked struct {
	Reason string
}

// ResyncRequest asks the host for full snapshots after a replica detected a
// missed diff.
type ResyncRequest struct{}
