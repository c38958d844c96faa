package replication

import (
	"sync"

	"github.com/automoto/kitchen-mp/events"
	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netcomponents"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
)

// Owner is a participant-side object that can hold a shared entity, such as a
// counter or a player.
type Owner interface {
	NetworkID() esync.NetworkId
	AcceptEntity(entity esync.NetworkId, typeIndex int)
	ReleaseEntity(entity esync.NetworkId)
}

// View mirrors the host's entities in a local world and forwards ownership
// changes to bound owners. Nothing appears in a View before the host confirms
// it.
type View struct {
	mu     sync.Mutex
	world  donburi.World
	owners map[esync.NetworkId]Owner

	Spawned          events.Bus[messages.EntitySpawned]
	OwnershipChanged events.Bus[messages.OwnershipChanged]
	Cleared          events.Bus[messages.ClearOwnership]
	Destroyed        events.Bus[messages.EntityDestroyed]
}

// NewView creates an empty view.
func NewView() *View {
	return &View{
		world:  donburi.NewWorld(),
		owners: make(map[esync.NetworkId]Owner),
	}
}

// Bind registers o under its network id, replacing any previous owner.
func (v *View) Bind(o Owner) {
	v.mu.Lock()
	v.owners[o.NetworkID()] = o
	v.mu.Unlock()
}

// Unbind forgets the owner registered under id.
func (v *View) Unbind(id esync.NetworkId) {
	v.mu.Lock()
	delete(v.owners, id)
	v.mu.Unlock()
}

// Lookup returns the entity's current state.
func (v *View) Lookup(id esync.NetworkId) (messages.EntitySpawned, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := lookup(v.world, id, netcomponents.NetEntity)
	if !ok {
		return messages.EntitySpawned{}, false
	}
	data := netcomponents.NetEntity.Get(entry)
	return messages.EntitySpawned{Entity: id, TypeIndex: data.TypeIndex, Owner: data.Owner}, true
}

// Len returns the number of live entities.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	esync.NetworkEntityQuery.Each(v.world, func(entry *donburi.Entry) {
		if entry.HasComponent(netcomponents.NetEntity) {
			n++
		}
	})
	return n
}

// ApplySpawned materializes a confirmed entity.
func (v *View) ApplySpawned(m messages.EntitySpawned) {
	v.mu.Lock()
	if _, exists := lookup(v.world, m.Entity, netcomponents.NetEntity); exists {
		v.mu.Unlock()
		return
	}
	v.create(m)
	owner := v.owners[m.Owner]
	v.mu.Unlock()

	if owner != nil {
		owner.AcceptEntity(m.Entity, m.TypeIndex)
	}
	v.Spawned.Publish(m)
}

// ApplyOwnershipChanged moves an entity between owners.
func (v *View) ApplyOwnershipChanged(m messages.OwnershipChanged) {
	v.mu.Lock()
	entry, ok := lookup(v.world, m.Entity, netcomponents.NetEntity)
	if !ok {
		v.mu.Unlock()
		return
	}
	data := netcomponents.NetEntity.Get(entry)
	data.Owner = m.To
	typeIndex := data.TypeIndex
	from, to := v.owners[m.From], v.owners[m.To]
	v.mu.Unlock()

	if from != nil {
		from.ReleaseEntity(m.Entity)
	}
	if to != nil {
		to.AcceptEntity(m.Entity, typeIndex)
	}
	v.OwnershipChanged.Publish(m)
}

// ApplyClearOwnership detaches an entity that is about to be destroyed.
func (v *View) ApplyClearOwnership(m messages.ClearOwnership) {
	v.mu.Lock()
	entry, ok := lookup(v.world, m.Entity, netcomponents.NetEntity)
	if !ok {
		v.mu.Unlock()
		return
	}
	netcomponents.NetEntity.Get(entry).Owner = 0
	owner := v.owners[m.Owner]
	v.mu.Unlock()

	if owner != nil {
		owner.ReleaseEntity(m.Entity)
	}
	v.Cleared.Publish(m)
}

// ApplyDestroyed removes an entity.
func (v *View) ApplyDestroyed(m messages.EntityDestroyed) {
	v.mu.Lock()
	entry, ok := lookup(v.world, m.Entity, netcomponents.NetEntity)
	if !ok {
		v.mu.Unlock()
		return
	}
	v.world.Remove(entry.Entity())
	v.mu.Unlock()

	v.Destroyed.Publish(m)
}

// ApplySnapshot replaces every entity with the snapshot's.
func (v *View) ApplySnapshot(s messages.EntitySnapshot) {
	type release struct {
		owner  Owner
		entity esync.NetworkId
	}
	var released []release

	v.mu.Lock()
	var stale []donburi.Entity
	esync.NetworkEntityQuery.Each(v.world, func(entry *donburi.Entry) {
		if !entry.HasComponent(netcomponents.NetEntity) {
			return
		}
		data := netcomponents.NetEntity.Get(entry)
		if o := v.owners[data.Owner]; o != nil {
			released = append(released, release{o, *esync.GetNetworkId(entry)})
		}
		stale = append(stale, entry.Entity())
	})
	for _, e := range stale {
		v.world.Remove(e)
	}
	for _, m := range s.Entities {
		v.create(m)
	}
	v.mu.Unlock()

	for _, r := range released {
		r.owner.ReleaseEntity(r.entity)
	}
	for _, m := range s.Entities {
		v.mu.Lock()
		owner := v.owners[m.Owner]
		v.mu.Unlock()
		if owner != nil {
			owner.AcceptEntity(m.Entity, m.TypeIndex)
		}
		v.Spawned.Publish(m)
	}
}

func (v *View) create(m messages.EntitySpawned) {
	entity := v.world.Create(esync.NetworkIdComponent, netcomponents.NetEntity)
	entry := v.world.Entry(entity)
	esync.NetworkIdComponent.SetValue(entry, m.Entity)
	netcomponents.NetEntity.SetValue(entry, netcomponents.NetEntityData{
		TypeIndex: m.TypeIndex,
		Owner:     m.Owner,
	})
}
