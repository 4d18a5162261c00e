// Package ecsdb is a deterministic, rollback-capable entity-component-system
// data engine for lock-step simulations: games, netcode, replay tooling.
// Every component type is stored in a sparse, fixed-shape bitmask tree
// (64x64x64, 262144 addressable slots); every mutation is journaled per
// tick so a world can be rolled back to any retained prior tick and land
// on a bit-identical state.
//
// # Basic Usage
//
//	w := ecsdb.NewWorld(ecsdb.Options{})
//
//	position := ecsdb.Register[Position](w)
//	velocity := ecsdb.Register[Velocity](w)
//
//	e, err := w.Spawn()
//	if err != nil {
//	    // handle [ErrNoFreeSlot]
//	}
//
//	positions := ecsdb.StorageFor[Position](w, position)
//	positions.Set(w.Tick(), e.Index(), Position{X: 1})
//
//	ecsdb.Query2Mut[Velocity, Position](w, velocity, position, nil, nil,
//	    func(e ecsdb.Entity, vel ecsdb.Handle[Velocity], pos *ecsdb.MutHandle[Position]) {
//	        p := pos.Get()
//	        p.X += vel.Get().DX
//	        pos.Set(p)
//	    })
//
//	if err := w.Rollback(w.Tick() - 1); err != nil {
//	    // handle [ErrRollbackBeyondWindow]
//	}
//
// # Concurrency
//
// A World is single-owner: one executor drives a tick at a time.
// Systems within a wavefront are free of read/write conflicts by
// construction (see package schedule), so a conforming caller may run a
// wavefront's systems on separate goroutines, but the reference World
// runs them sequentially and makes no attempt at its own to parallelize.
//
// # Error Handling
//
// Errors are value-returned and classified with errors.Is against the
// sentinels in errors.go ([ErrOutOfRange], [ErrNoFreeSlot],
// [ErrInvariantViolation], [ErrRollbackBeyondWindow]). The engine panics
// only on contract violations that indicate a caller bug: querying or
// fetching storage for a component type that was never registered, or
// registering past the reserved 256-id component space.
package ecsdb
