package netcomponents

import (
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
)

// NetEntityData is the replicated part of a shared world object.
type NetEntityData struct {
	TypeIndex int
	Owner     esync.NetworkId // 0 while detached
}

var NetEntity = donburi.NewComponentType[NetEntityData]()

// NetOwnerData marks an entity that can own shared world objects.
type NetOwnerData struct {
	Kind string
	Held esync.NetworkId
}

var NetOwner = donburi.NewComponentType[NetOwnerData]()
