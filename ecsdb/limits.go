package ecsdb

// Hardcoded implementation limits.
//
// These mirror the fixed shape of the bitmask tree and the reserved
// component-id space; they are not tunables.
const (
	// maxComponentID is the highest component id a registration may be
	// assigned. Ids are dense from 0; Entity and Destroyed occupy the
	// first two.
	maxComponentID = 255

	// maxComponents is the number of distinct component types a single
	// world can register.
	maxComponents = maxComponentID + 1

	// entityComponentID and destroyedComponentID are the reserved ids
	// for the two built-in component types.
	entityComponentID    ComponentID = 0
	destroyedComponentID ComponentID = 1

	// firstUserComponentID is the first id handed out by Register for a
	// user-defined component type.
	firstUserComponentID ComponentID = 2
)

// ComponentEntity and ComponentDestroyed are the reserved ids of the
// two built-in component types, usable with StorageFor and in
// QuerySpec.
const (
	ComponentEntity    = entityComponentID
	ComponentDestroyed = destroyedComponentID
)
