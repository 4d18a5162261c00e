package ecsdb

import "errors"

// Sentinel errors for this package.
//
// Callers should classify returned errors using errors.Is; functions may
// wrap these with additional context.
var (
	// ErrOutOfRange indicates an index >= TreeCapacity was passed to an
	// operation that rejects it (Set on a storage). Registration past the
	// reserved component-id range uses ErrTooManyComponents instead.
	ErrOutOfRange = errors.New("ecsdb: index out of range")

	// ErrNoFreeSlot indicates Spawn was called while the entity storage
	// was fully saturated (all 64^3 slots occupied).
	ErrNoFreeSlot = errors.New("ecsdb: no free slot")

	// ErrInvariantViolation is returned by VerifyInvariants. It is a
	// debug/test-path error; production code paths never trigger it
	// from correct usage.
	ErrInvariantViolation = errors.New("ecsdb: invariant violation")

	// ErrRollbackBeyondWindow indicates the requested rollback tick is
	// older than the oldest journal retained by some touched storage.
	// The world is left unchanged.
	ErrRollbackBeyondWindow = errors.New("ecsdb: rollback target beyond retained window")

	// ErrComponentNotRegistered indicates a storage was requested for a
	// component type that was never registered on this world. This is a
	// contract violation, not a recoverable condition; the storage
	// lookups (StorageFor, the Query functions, Each) panic with it
	// rather than returning it.
	ErrComponentNotRegistered = errors.New("ecsdb: component not registered")

	// ErrTooManyComponents indicates registration would exceed the
	// reserved component-id space (0-255).
	ErrTooManyComponents = errors.New("ecsdb: component id exceeds reserved range")
)
