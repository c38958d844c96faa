package messages

import "github.com/leap-fish/necs/esync"

// SpawnRequest asks the host to create an entity of catalog type TypeIndex
// owned by Parent. Any participant may send it.
type SpawnRequest struct {
	TypeIndex int
	Parent    esync.NetworkId
}

// DestroyRequest asks the host to destroy a live entity.
type DestroyRequest struct {
	Entity esync.NetworkId
}

// TransferRequest asks the host to move an entity to a new owner.
type TransferRequest struct {
	Entity esync.NetworkId
	Parent esync.NetworkId
}

// EntitySpawned is broadcast once the host created an entity.
type EntitySpawned struct {
	Entity    esync.NetworkId
	TypeIndex int
	Owner     esync.NetworkId
}

// OwnershipChanged is broadcast when the host reassigns an entity.
type OwnershipChanged struct {
	Entity esync.NetworkId
	From   esync.NetworkId
	To     esync.NetworkId
}

// ClearOwnership is broadcast before an entity is destroyed so every
// participant detaches it from its owner first.
type ClearOwnership struct {
	Entity esync.NetworkId
	Owner  esync.NetworkId
}

// EntityDestroyed is broadcast after ClearOwnership once the host removed the
// entity.
type EntityDestroyed struct {
	Entity esync.NetworkId
}

// EntitySnapshot lists every live entity (join, resync).
type EntitySnapshot struct {
	Entities []EntitySpawned
}
