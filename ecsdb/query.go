package ecsdb

import (
	"github.com/ecsforge/ecsdb/internal/bitmask"
	"github.com/ecsforge/ecsdb/internal/bitutil"
)

// QuerySpec describes the type-sets of one query: Required slots
// must hold a value for every listed component, Excluded slots must hold
// none of the listed components, and ChangedRequired slots must be
// flagged changed for every listed component. Changed flags accumulate
// until World.ClearChangedMasks is called; they are not reset per tick.
type QuerySpec struct {
	Required        []ComponentID
	Excluded        []ComponentID
	ChangedRequired []ComponentID
}

// Each enumerates every slot index matching spec, in ascending index
// order, calling fn once per match. It does the three-level mask
// intersection directly against the registered
// storages' summary masks; no slot is visited unless it survives the
// intersection at every level.
func (w *World) Each(spec QuerySpec, fn func(index uint32)) {
	required := w.lookupAll(spec.Required)
	excluded := w.lookupAll(spec.Excluded)
	changed := w.lookupAll(spec.ChangedRequired)

	forEachMatch(required, excluded, changed, fn)
}

func (w *World) lookupAll(ids []ComponentID) []anyStorage {
	if len(ids) == 0 {
		return nil
	}

	out := make([]anyStorage, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.mustStorage(id))
	}

	return out
}

// forEachMatch performs the top-down mask intersection over storage,
// page, then chunk.
func forEachMatch(required, excluded, changed []anyStorage, fn func(index uint32)) {
	if len(required) == 0 {
		return
	}

	top := topLevelMask(required, excluded, changed)

	bitutil.ForEachBit(top, func(pageIdx int) {
		pageMask := pageLevelMask(required, excluded, changed, pageIdx)

		bitutil.ForEachBit(pageMask, func(chunkIdx int) {
			chunkMask := chunkLevelMask(required, excluded, changed, pageIdx, chunkIdx)

			bitutil.ForEachBit(chunkMask, func(slot int) {
				fn(bitmask.Join(pageIdx, chunkIdx, slot))
			})
		})
	})
}

func topLevelMask(required, excluded, changed []anyStorage) uint64 {
	mask := ^uint64(0)

	for _, s := range required {
		presence, _, _ := s.masks()
		mask &= presence
	}

	for _, s := range excluded {
		_, fullness, _ := s.masks()
		mask &^= fullness
	}

	for _, s := range changed {
		_, _, chg := s.masks()
		mask &= chg
	}

	return mask
}

func pageLevelMask(required, excluded, changed []anyStorage, pageIdx int) uint64 {
	mask := ^uint64(0)

	for _, s := range required {
		presence, _, _ := s.pageMasks(pageIdx)
		mask &= presence
	}

	for _, s := range excluded {
		_, fullness, _ := s.pageMasks(pageIdx)
		mask &^= fullness
	}

	for _, s := range changed {
		_, _, chg := s.pageMasks(pageIdx)
		mask &= chg
	}

	return mask
}

func chunkLevelMask(required, excluded, changed []anyStorage, pageIdx, chunkIdx int) uint64 {
	mask := ^uint64(0)

	for _, s := range required {
		presence, _ := s.chunkMasks(pageIdx, chunkIdx)
		mask &= presence
	}

	for _, s := range excluded {
		presence, _ := s.chunkMasks(pageIdx, chunkIdx)
		mask &^= presence
	}

	for _, s := range changed {
		_, chg := s.chunkMasks(pageIdx, chunkIdx)
		mask &= chg
	}

	return mask
}

// Handle is an immutable read-side view of one component value at one
// slot, produced by Query1/Query2.
type Handle[T any] struct {
	storage *Storage[T]
	index   uint32
}

// Get returns the handle's value.
func (h Handle[T]) Get() T {
	v, _ := h.storage.Get(h.index)
	return v
}

// MutHandle is the write-side view of one component value at one slot. On
// its first Set, it journals the pre-image and marks the slot changed;
// subsequent Sets within the same handle's lifetime do not re-journal.
type MutHandle[T any] struct {
	storage *Storage[T]
	index   uint32
	tick    uint64
	written bool
}

// Get returns the handle's current value.
func (h *MutHandle[T]) Get() T {
	v, _ := h.storage.Get(h.index)
	return v
}

// Set overwrites the handle's value in place.
func (h *MutHandle[T]) Set(v T) {
	ptr, ok := h.storage.ValuePtr(h.index)
	if !ok {
		return
	}

	if !h.written {
		old := *ptr
		*ptr = v
		h.storage.markChanged(h.tick, h.index, old)
		h.written = true

		return
	}

	*ptr = v
}

// Query1 enumerates slots with component A present (and satisfying the
// excluded/changedRequired predicates), invoking fn with each matching
// entity and a read-only handle to A.
func Query1[A any](w *World, idA ComponentID, excluded, changedRequired []ComponentID, fn func(e Entity, a Handle[A])) {
	storageA := storageOf[A](w, idA)

	spec := QuerySpec{Required: []ComponentID{idA}, Excluded: excluded, ChangedRequired: changedRequired}

	w.Each(spec, func(index uint32) {
		fn(w.entityAt(index), Handle[A]{storage: storageA, index: index})
	})
}

// Query1Mut is Query1 with write access to A.
func Query1Mut[A any](w *World, idA ComponentID, excluded, changedRequired []ComponentID, fn func(e Entity, a *MutHandle[A])) {
	storageA := storageOf[A](w, idA)

	spec := QuerySpec{Required: []ComponentID{idA}, Excluded: excluded, ChangedRequired: changedRequired}

	w.Each(spec, func(index uint32) {
		fn(w.entityAt(index), &MutHandle[A]{storage: storageA, index: index, tick: w.tick})
	})
}

// Query2 is Query1 generalized to two required component types, both
// read-only.
func Query2[A, B any](w *World, idA, idB ComponentID, excluded, changedRequired []ComponentID, fn func(e Entity, a Handle[A], b Handle[B])) {
	storageA := storageOf[A](w, idA)
	storageB := storageOf[B](w, idB)

	spec := QuerySpec{Required: []ComponentID{idA, idB}, Excluded: excluded, ChangedRequired: changedRequired}

	w.Each(spec, func(index uint32) {
		fn(w.entityAt(index), Handle[A]{storage: storageA, index: index}, Handle[B]{storage: storageB, index: index})
	})
}

// Query2Mut is Query2 with write access to B (A stays read-only); this is
// the common "read one, write another" shape (e.g. read Velocity, write
// Position).
func Query2Mut[A, B any](w *World, idA, idB ComponentID, excluded, changedRequired []ComponentID, fn func(e Entity, a Handle[A], b *MutHandle[B])) {
	storageA := storageOf[A](w, idA)
	storageB := storageOf[B](w, idB)

	spec := QuerySpec{Required: []ComponentID{idA, idB}, Excluded: excluded, ChangedRequired: changedRequired}

	w.Each(spec, func(index uint32) {
		fn(
			w.entityAt(index),
			Handle[A]{storage: storageA, index: index},
			&MutHandle[B]{storage: storageB, index: index, tick: w.tick},
		)
	})
}

func storageOf[T any](w *World, id ComponentID) *Storage[T] {
	s, ok := w.storages[id].(*Storage[T])
	if !ok {
		panic(ErrComponentNotRegistered)
	}

	return s
}

func (w *World) entityAt(index uint32) Entity {
	e, _ := w.entityStorage.Get(index)
	return e
}
