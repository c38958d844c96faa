package messages

import (
	"time"

	"github.com/automoto/kitchen-mp/shared/netconfig"
)

// ReadyRequest is the sender's ready vote. Repeating it is harmless.
type ReadyRequest struct{}

// PauseRequest sets the sender's pause vote.
type PauseRequest struct {
	Paused bool
}

// MatchStateChanged is broadcast when the match phase advances.
type MatchStateChanged struct {
	Version       uint64
	Previous      netconfig.MatchStateID
	State         netconfig.MatchStateID
	Countdown     time.Duration
	PlayRemaining time.Duration
	PlayDuration  time.Duration
}

// MatchTimers is a periodic timer sync while a timer is running.
type MatchTimers struct {
	Version       uint64
	Countdown     time.Duration
	PlayRemaining time.Duration
}

// PauseChanged is broadcast on every edge of the aggregated pause flag.
type PauseChanged struct {
	Version uint64
	Paused  bool
}

// MatchSnapshot carries the complete match state (join, resync).
type MatchSnapshot struct {
	Version       uint64
	State         netconfig.MatchStateID
	Countdown     time.Duration
	PlayRemaining time.Duration
	PlayDuration  time.Duration
	Paused        bool
}
