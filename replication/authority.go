// Package replication implements the spawn/destroy/transfer handshake for
// shared kitchen objects. The host's Authority is the only writer; every
// participant mirrors the result in a View.
package replication

import (
	"fmt"
	"sort"

	"github.com/automoto/kitchen-mp/catalog"
	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netcomponents"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
	"go.uber.org/zap"
)

// Authority owns the canonical entity world on the host. Rejected requests
// return ok=false and are only debug-logged: they come from stale references
// or races with a concurrent destroy.
type Authority struct {
	world   donburi.World
	catalog *catalog.Catalog
	nextID  esync.NetworkId
	logger  *zap.Logger
}

// NewAuthority creates an authority over world.
func NewAuthority(world donburi.World, cat *catalog.Catalog, logger *zap.Logger) *Authority {
	return &Authority{
		world:   world,
		catalog: cat,
		nextID:  netconfig.FirstEntityNetworkID,
		logger:  logger,
	}
}

// World returns the authoritative world.
func (a *Authority) World() donburi.World { return a.world }

// RegisterParent adds a fixed owner, such as a kitchen counter, under its
// layout id.
func (a *Authority) RegisterParent(id esync.NetworkId, kind string) error {
	if id == 0 || id >= netconfig.FirstEntityNetworkID {
		return fmt.Errorf("parent id %d outside layout range", id)
	}
	if a.world.Valid(esync.FindByNetworkId(a.world, id)) {
		return fmt.Errorf("parent id %d already registered", id)
	}
	a.createParent(id, kind)
	return nil
}

// AddParent adds a dynamic owner, such as a player, and returns its id.
func (a *Authority) AddParent(kind string) esync.NetworkId {
	id := a.allocate()
	a.createParent(id, kind)
	return id
}

// RemoveParent removes an owner. Anything it held is destroyed first, and the
// returned messages must be broadcast in order.
func (a *Authority) RemoveParent(id esync.NetworkId) []any {
	entry, ok := a.parent(id)
	if !ok {
		return nil
	}
	var out []any
	if held := netcomponents.NetOwner.Get(entry).Held; held != 0 {
		if msgs, ok := a.Destroy(messages.DestroyRequest{Entity: held}); ok {
			out = msgs
		}
	}
	a.world.Remove(entry.Entity())
	return out
}

// Spawn creates an entity of the requested type held by the requested parent.
func (a *Authority) Spawn(req messages.SpawnRequest) (messages.EntitySpawned, bool) {
	if _, ok := a.catalog.Lookup(req.TypeIndex); !ok {
		a.logger.Debug("spawn dropped: unknown type", zap.Int("type", req.TypeIndex))
		return messages.EntitySpawned{}, false
	}
	parent, ok := a.parent(req.Parent)
	if !ok {
		a.logger.Debug("spawn dropped: unknown parent", zap.Uint("parent", uint(req.Parent)))
		return messages.EntitySpawned{}, false
	}
	owner := netcomponents.NetOwner.Get(parent)
	if owner.Held != 0 {
		a.logger.Debug("spawn dropped: parent occupied", zap.Uint("parent", uint(req.Parent)))
		return messages.EntitySpawned{}, false
	}

	id := a.allocate()
	entity := a.world.Create(esync.NetworkIdComponent, netcomponents.NetEntity)
	entry := a.world.Entry(entity)
	esync.NetworkIdComponent.SetValue(entry, id)
	netcomponents.NetEntity.SetValue(entry, netcomponents.NetEntityData{
		TypeIndex: req.TypeIndex,
		Owner:     req.Parent,
	})
	owner.Held = id

	return messages.EntitySpawned{Entity: id, TypeIndex: req.TypeIndex, Owner: req.Parent}, true
}

// Destroy removes a live entity. It returns ClearOwnership followed by
// EntityDestroyed, which must be broadcast in that order.
func (a *Authority) Destroy(req messages.DestroyRequest) ([]any, bool) {
	entry, ok := a.entity(req.Entity)
	if !ok {
		a.logger.Debug("destroy dropped: unknown entity", zap.Uint("entity", uint(req.Entity)))
		return nil, false
	}

	data := netcomponents.NetEntity.Get(entry)
	owner := data.Owner
	if p, ok := a.parent(owner); ok {
		netcomponents.NetOwner.Get(p).Held = 0
	}
	a.world.Remove(entry.Entity())

	return []any{
		messages.ClearOwnership{Entity: req.Entity, Owner: owner},
		messages.EntityDestroyed{Entity: req.Entity},
	}, true
}

// Transfer moves an entity to an empty parent.
func (a *Authority) Transfer(req messages.TransferRequest) (messages.OwnershipChanged, bool) {
	entry, ok := a.entity(req.Entity)
	if !ok {
		a.logger.Debug("transfer dropped: unknown entity", zap.Uint("entity", uint(req.Entity)))
		return messages.OwnershipChanged{}, false
	}
	target, ok := a.parent(req.Parent)
	if !ok || netcomponents.NetOwner.Get(target).Held != 0 {
		a.logger.Debug("transfer dropped: parent unavailable", zap.Uint("parent", uint(req.Parent)))
		return messages.OwnershipChanged{}, false
	}

	data := netcomponents.NetEntity.Get(entry)
	from := data.Owner
	if p, ok := a.parent(from); ok {
		netcomponents.NetOwner.Get(p).Held = 0
	}
	data.Owner = req.Parent
	netcomponents.NetOwner.Get(target).Held = req.Entity

	return messages.OwnershipChanged{Entity: req.Entity, From: from, To: req.Parent}, true
}

// Held returns the entity parent holds, or 0.
func (a *Authority) Held(parent esync.NetworkId) esync.NetworkId {
	entry, ok := a.parent(parent)
	if !ok {
		return 0
	}
	return netcomponents.NetOwner.Get(entry).Held
}

// Snapshot lists every live entity ordered by id.
func (a *Authority) Snapshot() messages.EntitySnapshot {
	var out []messages.EntitySpawned
	esync.NetworkEntityQuery.Each(a.world, func(entry *donburi.Entry) {
		if !entry.HasComponent(netcomponents.NetEntity) {
			return
		}
		data := netcomponents.NetEntity.Get(entry)
		out = append(out, messages.EntitySpawned{
			Entity:    *esync.GetNetworkId(entry),
			TypeIndex: data.TypeIndex,
			Owner:     data.Owner,
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return messages.EntitySnapshot{Entities: out}
}

func (a *Authority) allocate() esync.NetworkId {
	id := a.nextID
	a.nextID++
	return id
}

func (a *Authority) createParent(id esync.NetworkId, kind string) {
	entity := a.world.Create(esync.NetworkIdComponent, netcomponents.NetOwner)
	entry := a.world.Entry(entity)
	esync.NetworkIdComponent.SetValue(entry, id)
	netcomponents.NetOwner.SetValue(entry, netcomponents.NetOwnerData{Kind: kind})
}

func (a *Authority) parent(id esync.NetworkId) (*donburi.Entry, bool) {
	return lookup(a.world, id, netcomponents.NetOwner)
}

func (a *Authority) entity(id esync.NetworkId) (*donburi.Entry, bool) {
	return lookup(a.world, id, netcomponents.NetEntity)
}

func lookup(world donburi.World, id esync.NetworkId, want donburi.IComponentType) (*donburi.Entry, bool) {
	if id == 0 {
		return nil, false
	}
	entity := esync.FindByNetworkId(world, id)
	if !world.Valid(entity) {
		return nil, false
	}
	entry := world.Entry(entity)
	if !entry.HasComponent(want) {
		return nil, false
	}
	return entry, true
}
