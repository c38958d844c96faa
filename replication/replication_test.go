package replication

import (
	"testing"

	"github.com/automoto/kitchen-mp/catalog"
	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/leap-fish/necs/esync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"
	"go.uber.org/zap/zaptest"
)

const counterP esync.NetworkId = 7

type fakeOwner struct {
	id   esync.NetworkId
	held esync.NetworkId
	log  *[]string
}

func (o *fakeOwner) NetworkID() esync.NetworkId { return o.id }

func (o *fakeOwner) AcceptEntity(entity esync.NetworkId, _ int) {
	o.held = entity
	*o.log = append(*o.log, "accept")
}

func (o *fakeOwner) ReleaseEntity(entity esync.NetworkId) {
	if o.held == entity {
		o.held = 0
	}
	*o.log = append(*o.log, "release")
}

func newAuthority(t *testing.T) *Authority {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	a := NewAuthority(donburi.NewWorld(), cat, zaptest.NewLogger(t))
	require.NoError(t, a.RegisterParent(counterP, "clear"))
	return a
}

// deliver plays host output into every view, in order.
func deliver(views []*View, msgs ...any) {
	for _, v := range views {
		for _, msg := range msgs {
			switch m := msg.(type) {
			case messages.EntitySpawned:
				v.ApplySpawned(m)
			case messages.OwnershipChanged:
				v.ApplyOwnershipChanged(m)
			case messages.ClearOwnership:
				v.ApplyClearOwnership(m)
			case messages.EntityDestroyed:
				v.ApplyDestroyed(m)
			}
		}
	}
}

func TestSpawnDestroyScenario(t *testing.T) {
	// Arrange
	a := newAuthority(t)
	views := []*View{NewView(), NewView(), NewView()}
	logs := make([][]string, len(views))
	for i, v := range views {
		i, v := i, v
		v.Bind(&fakeOwner{id: counterP, log: &logs[i]})
		v.Cleared.Subscribe(func(messages.ClearOwnership) {
			_, stillThere := v.Lookup(netconfig.FirstEntityNetworkID)
			require.True(t, stillThere, "cleared before removal")
			logs[i] = append(logs[i], "cleared")
		})
		v.Destroyed.Subscribe(func(messages.EntityDestroyed) { logs[i] = append(logs[i], "destroyed") })
	}

	// Act: spawn
	spawned, ok := a.Spawn(messages.SpawnRequest{TypeIndex: 3, Parent: counterP})
	require.True(t, ok)
	deliver(views, spawned)

	// Assert
	for _, v := range views {
		got, ok := v.Lookup(spawned.Entity)
		require.True(t, ok)
		assert.Equal(t, counterP, got.Owner)
		assert.Equal(t, 3, got.TypeIndex)
	}
	require.Equal(t, spawned.Entity, a.Held(counterP))

	// Act: destroy
	out, ok := a.Destroy(messages.DestroyRequest{Entity: spawned.Entity})
	require.True(t, ok)
	require.IsType(t, messages.ClearOwnership{}, out[0])
	require.IsType(t, messages.EntityDestroyed{}, out[1])
	deliver(views, out...)

	// Assert
	for i, v := range views {
		assert.Zero(t, v.Len())
		assert.Equal(t, []string{"accept", "release", "cleared", "destroyed"}, logs[i])
	}
	require.Zero(t, a.Held(counterP))
}

func TestDestroyUnknownIsNoop(t *testing.T) {
	a := newAuthority(t)

	out, ok := a.Destroy(messages.DestroyRequest{Entity: 999999})

	require.False(t, ok)
	require.Empty(t, out)
}

func TestDestroyTwiceSecondIsNoop(t *testing.T) {
	a := newAuthority(t)
	spawned, _ := a.Spawn(messages.SpawnRequest{TypeIndex: 0, Parent: counterP})

	_, ok := a.Destroy(messages.DestroyRequest{Entity: spawned.Entity})
	require.True(t, ok)
	_, ok = a.Destroy(messages.DestroyRequest{Entity: spawned.Entity})
	require.False(t, ok)
}

func TestSpawnRejections(t *testing.T) {
	a := newAuthority(t)

	_, ok := a.Spawn(messages.SpawnRequest{TypeIndex: 99, Parent: counterP})
	assert.False(t, ok, "type out of range")

	_, ok = a.Spawn(messages.SpawnRequest{TypeIndex: 0, Parent: 12345})
	assert.False(t, ok, "unknown parent")

	_, ok = a.Spawn(messages.SpawnRequest{TypeIndex: 0, Parent: counterP})
	require.True(t, ok)
	_, ok = a.Spawn(messages.SpawnRequest{TypeIndex: 1, Parent: counterP})
	assert.False(t, ok, "parent already holds something")

	require.Len(t, a.Snapshot().Entities, 1)
}

func TestEntityIsNotAParent(t *testing.T) {
	a := newAuthority(t)
	spawned, _ := a.Spawn(messages.SpawnRequest{TypeIndex: 0, Parent: counterP})

	_, ok := a.Spawn(messages.SpawnRequest{TypeIndex: 0, Parent: spawned.Entity})

	require.False(t, ok)
}

func TestTransfer(t *testing.T) {
	a := newAuthority(t)
	player := a.AddParent("player")
	spawned, _ := a.Spawn(messages.SpawnRequest{TypeIndex: 9, Parent: counterP})

	var log []string
	counter := &fakeOwner{id: counterP, log: &log}
	holder := &fakeOwner{id: player, log: &log}
	v := NewView()
	v.Bind(counter)
	v.Bind(holder)
	deliver([]*View{v}, spawned)

	changed, ok := a.Transfer(messages.TransferRequest{Entity: spawned.Entity, Parent: player})
	require.True(t, ok)
	require.Equal(t, messages.OwnershipChanged{Entity: spawned.Entity, From: counterP, To: player}, changed)
	deliver([]*View{v}, changed)

	assert.Zero(t, counter.held)
	assert.Equal(t, spawned.Entity, holder.held)
	assert.Equal(t, spawned.Entity, a.Held(player))
	assert.Zero(t, a.Held(counterP))

	_, ok = a.Transfer(messages.TransferRequest{Entity: spawned.Entity, Parent: player})
	assert.False(t, ok, "target occupied")
}

func TestRegisterParentValidatesRange(t *testing.T) {
	a := newAuthority(t)

	require.Error(t, a.RegisterParent(counterP, "clear"))
	require.Error(t, a.RegisterParent(netconfig.FirstEntityNetworkID, "clear"))
	require.Error(t, a.RegisterParent(0, "clear"))
}

func TestRemoveParentDestroysHeldEntity(t *testing.T) {
	a := newAuthority(t)
	player := a.AddParent("player")
	require.GreaterOrEqual(t, player, esync.NetworkId(netconfig.FirstEntityNetworkID))
	spawned, ok := a.Spawn(messages.SpawnRequest{TypeIndex: 8, Parent: player})
	require.True(t, ok)

	out := a.RemoveParent(player)

	require.Equal(t, []any{
		messages.ClearOwnership{Entity: spawned.Entity, Owner: player},
		messages.EntityDestroyed{Entity: spawned.Entity},
	}, out)
	_, ok = a.Spawn(messages.SpawnRequest{TypeIndex: 8, Parent: player})
	require.False(t, ok)
}

func TestViewSnapshotReplacesEntities(t *testing.T) {
	a := newAuthority(t)
	second := a.AddParent("player")
	e1, _ := a.Spawn(messages.SpawnRequest{TypeIndex: 0, Parent: counterP})
	e2, _ := a.Spawn(messages.SpawnRequest{TypeIndex: 1, Parent: second})

	v := NewView()
	v.ApplySpawned(messages.EntitySpawned{Entity: 424242, TypeIndex: 2, Owner: counterP})

	v.ApplySnapshot(a.Snapshot())

	require.Equal(t, 2, v.Len())
	_, ok := v.Lookup(424242)
	require.False(t, ok)
	got, ok := v.Lookup(e2.Entity)
	require.True(t, ok)
	require.Equal(t, second, got.Owner)
	_, ok = v.Lookup(e1.Entity)
	require.True(t, ok)
}
