package match

import (
	"testing"
	"time"

	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, r *Replica, msgs []any) {
	t.Helper()
	for _, msg := range msgs {
		switch m := msg.(type) {
		case messages.MatchStateChanged:
			require.NoError(t, r.ApplyStateChanged(m))
		case messages.PauseChanged:
			require.NoError(t, r.ApplyPauseChanged(m))
		case messages.MatchTimers:
			r.ApplyTimers(m)
		}
	}
}

func TestReplicaFollowsMachine(t *testing.T) {
	m := NewMachine(DefaultConfig())
	r := NewReplica(DefaultConfig())

	var states []netconfig.MatchStateID
	r.StateChanged.Subscribe(func(msg messages.MatchStateChanged) { states = append(states, msg.State) })

	m.Connect("A")
	require.True(t, r.IsWaitingToStart())

	feed(t, r, m.Ready("A"))
	require.True(t, r.IsCountdownActive())

	feed(t, r, runFor(m, 3*time.Second))
	require.True(t, r.IsPlaying())
	require.Zero(t, r.PlayTimeNormalized())

	feed(t, r, runFor(m, 150*time.Second))
	require.InDelta(t, 0.5, r.PlayTimeNormalized(), 0.01)

	feed(t, r, runFor(m, 150*time.Second))
	require.True(t, r.IsGameOver())
	require.Equal(t, 1.0, r.PlayTimeNormalized())

	require.Equal(t, []netconfig.MatchStateID{
		netconfig.MatchStateCountdown, netconfig.MatchStatePlaying, netconfig.MatchStateGameOver,
	}, states)
}

func TestReplicaPauseEvents(t *testing.T) {
	m := NewMachine(DefaultConfig())
	r := NewReplica(DefaultConfig())
	paused, unpaused := 0, 0
	r.MultiplayerPaused.Subscribe(func(struct{}) { paused++ })
	r.MultiplayerUnpaused.Subscribe(func(struct{}) { unpaused++ })

	m.Connect("A")
	feed(t, r, m.SetPause("A", true))
	require.True(t, r.IsPaused())
	require.Zero(t, r.TimeScale())

	feed(t, r, m.SetPause("A", false))
	require.Equal(t, 1.0, r.TimeScale())
	require.Equal(t, 1, paused)
	require.Equal(t, 1, unpaused)
}

func TestReplicaVersionGap(t *testing.T) {
	r := NewReplica(DefaultConfig())

	err := r.ApplyPauseChanged(messages.PauseChanged{Version: 3, Paused: true})

	require.ErrorIs(t, err, ErrVersionGap)
	require.False(t, r.IsPaused())
}

func TestReplicaSnapshotPublishesDifferences(t *testing.T) {
	r := NewReplica(DefaultConfig())
	var got []netconfig.MatchStateID
	r.StateChanged.Subscribe(func(msg messages.MatchStateChanged) { got = append(got, msg.State) })
	pauses := 0
	r.MultiplayerPaused.Subscribe(func(struct{}) { pauses++ })

	r.ApplySnapshot(messages.MatchSnapshot{
		Version:       5,
		State:         netconfig.MatchStatePlaying,
		PlayRemaining: 100 * time.Second,
		PlayDuration:  300 * time.Second,
		Paused:        true,
	})

	require.Equal(t, []netconfig.MatchStateID{netconfig.MatchStatePlaying}, got)
	require.Equal(t, 1, pauses)
	require.Equal(t, uint64(5), r.Version())
}

func TestReplicaAdvanceStopsAtZero(t *testing.T) {
	r := NewReplica(DefaultConfig())
	require.NoError(t, r.ApplyStateChanged(messages.MatchStateChanged{
		Version: 1, State: netconfig.MatchStateCountdown, Countdown: time.Second,
	}))

	r.Advance(2 * time.Second)

	require.Zero(t, r.CountdownRemaining())
	require.True(t, r.IsCountdownActive())
}
