package lobby

import "github.com/automoto/kitchen-mp/events"

// Status is a lobby progress or failure notice shown to the player.
type Status int

const (
	StatusCreating Status = iota
	StatusCreateFailed
	StatusJoining
	StatusJoinFailed
	StatusQuickJoinFailed
)

var statusMessages = map[Status]string{
	StatusCreating:        "Creating Lobby...",
	StatusCreateFailed:    "Failed to create lobby!",
	StatusJoining:         "Joining Lobby...",
	StatusJoinFailed:      "Failed to join lobby!",
	StatusQuickJoinFailed: "Could not find a lobby to join!",
}

// Message returns the text for a status.
func Message(s Status) string {
	return statusMessages[s]
}

// Statuses forwards the client's started and failed events to fn as
// statuses. Release the returned group to stop.
func (c *Client) Statuses(fn func(Status)) *events.Group {
	g := &events.Group{}
	g.Add(c.CreateStarted.Subscribe(func(struct{}) { fn(StatusCreating) }))
	g.Add(c.CreateFailed.Subscribe(func(error) { fn(StatusCreateFailed) }))
	g.Add(c.JoinStarted.Subscribe(func(struct{}) { fn(StatusJoining) }))
	g.Add(c.JoinFailed.Subscribe(func(error) { fn(StatusJoinFailed) }))
	g.Add(c.QuickJoinFailed.Subscribe(func(error) { fn(StatusQuickJoinFailed) }))
	return g
}
