package main

import (
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/automoto/kitchen-mp/shared/directory"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return NewRegistry(30*time.Second, clock, zaptest.NewLogger(t)), clock
}

func TestRegistryCreate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	s, err := reg.Create("p1", directory.CreateRequest{Name: "Kitchen", PlayerName: "Ann", MaxPlayers: 9}, 4)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Len(t, s.Code, codeLength)
	assert.Equal(t, 4, s.MaxPlayers)
	assert.Equal(t, "p1", s.HostID)
	require.Len(t, s.Members, 1)
	assert.Equal(t, "Ann", s.Members[0].Name)

	_, err = reg.Create("p1", directory.CreateRequest{}, 4)
	assert.ErrorIs(t, err, directory.ErrBadRequest)
}

func TestRegistryCreateFailsWithoutRandomness(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.random = iotest.ErrReader(errors.New("entropy exhausted"))

	_, err := reg.Create("p1", directory.CreateRequest{Name: "Kitchen"}, 4)
	require.ErrorContains(t, err, "entropy exhausted")
	assert.Empty(t, reg.List(false))
}

func TestRegistryReturnsCopies(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create("p1", directory.CreateRequest{Name: "Kitchen"}, 4)
	require.NoError(t, err)

	s.Data["x"] = "y"
	s.Members[0].Name = "changed"

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Data)
	assert.Empty(t, got.Members[0].Name)
}

func TestRegistryJoinUntilFull(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create("host", directory.CreateRequest{Name: "Kitchen", MaxPlayers: 2}, 4)
	require.NoError(t, err)

	joined, err := reg.Join(s.ID, "p2", "Bo")
	require.NoError(t, err)
	assert.Len(t, joined.Members, 2)

	again, err := reg.Join(s.ID, "p2", "Bo")
	require.NoError(t, err, "joining twice is idempotent")
	assert.Len(t, again.Members, 2)

	_, err = reg.Join(s.ID, "p3", "Cy")
	assert.ErrorIs(t, err, directory.ErrFull)

	_, err = reg.Join("missing", "p3", "Cy")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestRegistryJoinByCode(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create("host", directory.CreateRequest{Name: "Secret", Private: true}, 4)
	require.NoError(t, err)

	joined, err := reg.JoinByCode(s.Code, "p2", "Bo")
	require.NoError(t, err)
	assert.Equal(t, s.ID, joined.ID)

	_, err = reg.JoinByCode("NOPE00", "p2", "Bo")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestRegistryQuickJoinPicksOldestPublic(t *testing.T) {
	reg, clock := newTestRegistry(t)

	_, err := reg.Create("a", directory.CreateRequest{Name: "Private", Private: true}, 4)
	require.NoError(t, err)
	clock.Advance(time.Second)
	first, err := reg.Create("b", directory.CreateRequest{Name: "First"}, 4)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = reg.Create("c", directory.CreateRequest{Name: "Second"}, 4)
	require.NoError(t, err)

	s, err := reg.QuickJoin("p", "Pat")
	require.NoError(t, err)
	assert.Equal(t, first.ID, s.ID)

	list := reg.List(true)
	require.Len(t, list, 2)
	assert.Equal(t, "First", list[0].Name)
}

func TestRegistryQuickJoinNothingAvailable(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Create("a", directory.CreateRequest{Name: "Solo", MaxPlayers: 1}, 4)
	require.NoError(t, err)

	_, err = reg.QuickJoin("p", "Pat")
	assert.ErrorIs(t, err, directory.ErrNotFound)
	assert.Empty(t, reg.List(true))
	assert.Len(t, reg.List(false), 1)
}

func TestRegistryHostOnlyOperations(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create("host", directory.CreateRequest{Name: "Kitchen"}, 4)
	require.NoError(t, err)
	_, err = reg.Join(s.ID, "p2", "Bo")
	require.NoError(t, err)

	assert.ErrorIs(t, reg.Delete(s.ID, "p2"), directory.ErrForbidden)
	assert.ErrorIs(t, reg.Heartbeat(s.ID, "p2"), directory.ErrForbidden)
	_, err = reg.UpdateData(s.ID, "p2", map[string]string{"k": "v"})
	assert.ErrorIs(t, err, directory.ErrForbidden)

	updated, err := reg.UpdateData(s.ID, "host", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", updated.Data["k"])

	require.NoError(t, reg.Delete(s.ID, "host"))
	_, err = reg.Get(s.ID)
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestRegistryRemoveMember(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s, err := reg.Create("host", directory.CreateRequest{Name: "Kitchen"}, 4)
	require.NoError(t, err)
	for _, id := range []string{"p2", "p3"} {
		_, err = reg.Join(s.ID, id, id)
		require.NoError(t, err)
	}

	assert.ErrorIs(t, reg.RemoveMember(s.ID, "p2", "p3"), directory.ErrForbidden)
	require.NoError(t, reg.RemoveMember(s.ID, "p2", "p2"))
	require.NoError(t, reg.RemoveMember(s.ID, "host", "p3"))
	assert.ErrorIs(t, reg.RemoveMember(s.ID, "host", "p3"), directory.ErrNotFound)

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Members, 1)

	require.NoError(t, reg.RemoveMember(s.ID, "host", "host"))
	_, err = reg.Get(s.ID)
	assert.ErrorIs(t, err, directory.ErrNotFound, "host leaving closes the session")
}

func TestRegistryExpire(t *testing.T) {
	reg, clock := newTestRegistry(t)
	kept, err := reg.Create("a", directory.CreateRequest{Name: "Kept"}, 4)
	require.NoError(t, err)
	dropped, err := reg.Create("b", directory.CreateRequest{Name: "Dropped"}, 4)
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	require.NoError(t, reg.Heartbeat(kept.ID, "a"))
	clock.Advance(15 * time.Second)

	assert.Equal(t, 1, reg.Expire())
	_, err = reg.Get(dropped.ID)
	assert.ErrorIs(t, err, directory.ErrNotFound)
	_, err = reg.JoinByCode(dropped.Code, "p", "Pat")
	assert.ErrorIs(t, err, directory.ErrNotFound)
	_, err = reg.Get(kept.ID)
	assert.NoError(t, err)
}
