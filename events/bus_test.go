package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	var bus Bus[int]
	var got []string

	bus.Subscribe(func(v int) { got = append(got, "a") })
	bus.Subscribe(func(v int) { got = append(got, "b") })

	bus.Publish(1)

	require.Equal(t, []string{"a", "b"}, got)
}

func TestSubscriptionRelease(t *testing.T) {
	var bus Bus[string]
	calls := 0

	sub := bus.Subscribe(func(string) { calls++ })
	bus.Publish("x")
	sub.Release()
	sub.Release()
	bus.Publish("y")

	require.Equal(t, 1, calls)
	require.Zero(t, bus.Len())
}

func TestReleaseInsideHandler(t *testing.T) {
	var bus Bus[int]
	calls := 0

	var sub *Subscription
	sub = bus.Subscribe(func(int) {
		calls++
		sub.Release()
	})

	bus.Publish(1)
	bus.Publish(2)

	require.Equal(t, 1, calls)
}

func TestGroupReleasesAll(t *testing.T) {
	var a Bus[int]
	var b Bus[bool]
	var group Group

	group.Add(a.Subscribe(func(int) {}))
	group.Add(b.Subscribe(func(bool) {}))
	require.Equal(t, 1, a.Len())

	group.Release()

	require.Zero(t, a.Len())
	require.Zero(t, b.Len())
}
