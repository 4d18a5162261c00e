package ecsdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsforge/ecsdb"
)

type Position struct{ X int }

type Velocity struct{ DX int }

type Frozen struct{}

func TestWorld_S1_BasicSetRollback(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})
	pos := ecsdb.Register[Position](w)
	positions := ecsdb.StorageFor[Position](w, pos)

	require.NoError(t, w.AdvanceTick()) // tick 1
	require.NoError(t, positions.Set(w.Tick(), 5, Position{X: 1}))

	require.NoError(t, w.AdvanceTick()) // tick 2
	require.NoError(t, positions.Set(w.Tick(), 5, Position{X: 2}))

	require.NoError(t, w.Rollback(1))

	v, ok := positions.Get(5)
	require.True(t, ok)
	assert.Equal(t, Position{X: 1}, v)
}

func TestWorld_S2_CreatedThenRemovedSameTick(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})
	pos := ecsdb.Register[Position](w)
	positions := ecsdb.StorageFor[Position](w, pos)

	for i := 0; i < 4; i++ {
		require.NoError(t, w.AdvanceTick())
	}

	require.Equal(t, uint64(4), w.Tick())

	require.NoError(t, w.AdvanceTick()) // tick 5
	require.NoError(t, positions.Set(w.Tick(), 42, Position{X: 7}))
	positions.Remove(w.Tick(), 42)

	require.NoError(t, w.Rollback(4))

	_, ok := positions.Get(42)
	assert.False(t, ok)
}

func TestWorld_S3_RemovedThenReaddedSameTick(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})
	pos := ecsdb.Register[Position](w)
	positions := ecsdb.StorageFor[Position](w, pos)

	for i := 0; i < 9; i++ {
		require.NoError(t, w.AdvanceTick())
	}

	require.NoError(t, w.AdvanceTick()) // tick 10
	require.NoError(t, positions.Set(w.Tick(), 9, Position{X: 3}))

	require.NoError(t, w.AdvanceTick()) // tick 11
	positions.Remove(w.Tick(), 9)
	require.NoError(t, positions.Set(w.Tick(), 9, Position{X: 4}))

	require.NoError(t, w.Rollback(10))

	v, ok := positions.Get(9)
	require.True(t, ok)
	assert.Equal(t, Position{X: 3}, v)
}

func TestWorld_S5_QueryWithExclusion(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})
	pos := ecsdb.Register[Position](w)
	vel := ecsdb.Register[Velocity](w)
	frozen := ecsdb.Register[Frozen](w)

	positions := ecsdb.StorageFor[Position](w, pos)
	velocities := ecsdb.StorageFor[Velocity](w, vel)
	frozens := ecsdb.StorageFor[Frozen](w, frozen)

	require.NoError(t, w.AdvanceTick())

	const n = 10000

	for i := uint32(0); i < n; i++ {
		require.NoError(t, positions.Set(w.Tick(), i, Position{X: int(i)}))
		require.NoError(t, velocities.Set(w.Tick(), i, Velocity{DX: 1}))
	}

	for i := uint32(500); i < n; i++ {
		require.NoError(t, frozens.Set(w.Tick(), i, Frozen{}))
	}

	var matched []uint32

	w.Each(ecsdb.QuerySpec{
		Required: []ecsdb.ComponentID{vel},
		Excluded: []ecsdb.ComponentID{frozen},
	}, func(index uint32) {
		matched = append(matched, index)
	})

	require.Len(t, matched, 500)

	for i, idx := range matched {
		assert.Equal(t, uint32(i), idx, "results must be in ascending index order")
	}
}

func TestWorld_S7_EntityRespawnGenerationsDiffer(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})

	e1, err := w.Spawn()
	require.NoError(t, err)

	e2, err := w.Spawn()
	require.NoError(t, err)

	e3, err := w.Spawn()
	require.NoError(t, err)

	assert.Equal(t, uint32(0), e1.Index())
	assert.Equal(t, uint32(1), e2.Index())
	assert.Equal(t, uint32(2), e3.Index())

	w.Despawn(e2)

	e4, err := w.Spawn()
	require.NoError(t, err)

	assert.Equal(t, uint32(1), e4.Index())
	assert.NotEqual(t, e2.Generation(), e4.Generation())
	assert.Greater(t, e4.Generation(), e3.Generation())
}

func TestWorld_DestroyedMarkerTriggersCleanup(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})
	pos := ecsdb.Register[Position](w)
	positions := ecsdb.StorageFor[Position](w, pos)

	e, err := w.Spawn()
	require.NoError(t, err)

	require.NoError(t, w.AdvanceTick())
	require.NoError(t, positions.Set(w.Tick(), e.Index(), Position{X: 1}))

	destroyed := ecsdb.StorageFor[ecsdb.Destroyed](w, ecsdb.ComponentDestroyed)
	require.NoError(t, destroyed.Set(w.Tick(), e.Index(), ecsdb.Destroyed{}))

	require.NoError(t, w.AdvanceTick())

	_, ok := positions.Get(e.Index())
	assert.False(t, ok, "cleanup system should have removed Position from a Destroyed entity")
}

func TestWorld_VerifyInvariantsPassesAfterMixedOps(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})
	pos := ecsdb.Register[Position](w)
	positions := ecsdb.StorageFor[Position](w, pos)

	require.NoError(t, w.AdvanceTick())

	for i := uint32(0); i < 1000; i++ {
		require.NoError(t, positions.Set(w.Tick(), i, Position{X: int(i)}))
	}

	for i := uint32(0); i < 1000; i += 3 {
		positions.Remove(w.Tick(), i)
	}

	require.NoError(t, w.VerifyInvariants())
}

func TestWorld_RollbackBeyondWindowReturnsError(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{Retention: 2})
	pos := ecsdb.Register[Position](w)
	positions := ecsdb.StorageFor[Position](w, pos)

	for tick := 0; tick < 10; tick++ {
		require.NoError(t, w.AdvanceTick())
		require.NoError(t, positions.Set(w.Tick(), 1, Position{X: tick}))
	}

	err := w.Rollback(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ecsdb.ErrRollbackBeyondWindow)
}

func TestWorld_RemoveThenRecreateAcrossTicksRollback(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})
	pos := ecsdb.Register[Position](w)
	positions := ecsdb.StorageFor[Position](w, pos)

	require.NoError(t, w.AdvanceTick()) // tick 1
	require.NoError(t, positions.Set(w.Tick(), 5, Position{X: 1}))

	require.NoError(t, w.AdvanceTick()) // tick 2
	positions.Remove(w.Tick(), 5)

	require.NoError(t, w.AdvanceTick()) // tick 3
	require.NoError(t, positions.Set(w.Tick(), 5, Position{X: 2}))

	require.NoError(t, w.Rollback(1))

	v, ok := positions.Get(5)
	require.True(t, ok, "rollback to before the removal must restore the original value")
	assert.Equal(t, Position{X: 1}, v)
}

func TestWorld_RemoveOutOfRangeIndexIsNoop(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})
	pos := ecsdb.Register[Position](w)
	positions := ecsdb.StorageFor[Position](w, pos)

	require.NoError(t, w.AdvanceTick())

	removed := positions.Remove(w.Tick(), 1_000_000)
	assert.False(t, removed)
}

func TestWorld_S4_BoundaryIndicesMultiTickRollback(t *testing.T) {
	t.Parallel()

	w := ecsdb.NewWorld(ecsdb.Options{})
	pos := ecsdb.Register[Position](w)
	positions := ecsdb.StorageFor[Position](w, pos)

	indices := []uint32{0, 63, 64, 4095, 4096, 4160, 50000}

	require.NoError(t, w.AdvanceTick()) // tick 1

	for _, idx := range indices {
		require.NoError(t, positions.Set(w.Tick(), idx, Position{X: int(idx)}))
	}

	require.NoError(t, w.AdvanceTick()) // tick 2: the rollback target, no mutations here

	for w.Tick() < 23 {
		require.NoError(t, w.AdvanceTick())
	}

	require.Equal(t, uint64(23), w.Tick())
	require.NoError(t, positions.Set(w.Tick(), 64, Position{X: -1}))
	require.NoError(t, positions.Set(w.Tick(), 4096, Position{X: -2}))

	for w.Tick() < 30 {
		require.NoError(t, w.AdvanceTick())
	}

	require.Equal(t, uint64(30), w.Tick())
	positions.Remove(w.Tick(), 0)
	positions.Remove(w.Tick(), 4095)

	for w.Tick() < 38 {
		require.NoError(t, w.AdvanceTick())
	}

	require.Equal(t, uint64(38), w.Tick())
	require.NoError(t, positions.Set(w.Tick(), 0, Position{X: -3})) // recreate a removed boundary index
	require.NoError(t, positions.Set(w.Tick(), 50000, Position{X: -4}))

	require.NoError(t, w.Rollback(2))

	for _, idx := range indices {
		v, ok := positions.Get(idx)
		require.True(t, ok, "index %d must be restored by rollback to before any later-tick mutation", idx)
		assert.Equal(t, Position{X: int(idx)}, v, "index %d must have its tick-1 value after rollback", idx)
	}

	require.NoError(t, w.VerifyInvariants())
}
