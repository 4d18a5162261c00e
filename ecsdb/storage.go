package ecsdb

import (
	"errors"
	"fmt"

	"github.com/ecsforge/ecsdb/internal/bitmask"
	"github.com/ecsforge/ecsdb/internal/journal"
)

// Storage is the public object for one component type: a bitmask storage
// tree plus a bounded journal deque, bound together through EnsureTick so
// that every Set/Remove on the tree is paired with a journal diff.
type Storage[T any] struct {
	id ComponentID

	tree    *bitmask.Tree[T]
	history *journal.History[T]
	tick    uint64
}

// NewStorage constructs an empty storage for component id with the given
// journal retention (sealed-tick window). retention is clamped to >= 2 by
// journal.NewHistory.
func NewStorage[T any](id ComponentID, retention int) *Storage[T] {
	return &Storage[T]{
		id:      id,
		tree:    bitmask.New[T](),
		history: journal.NewHistory[T](retention),
	}
}

// Get returns the value at index and whether it is present.
func (s *Storage[T]) Get(index uint32) (T, bool) {
	return s.tree.Get(index)
}

// ValuePtr returns a pointer to the stored value for in-place mutation,
// used by mutable query handles. It does not journal anything by itself;
// callers must go through markChanged/Set to record the diff.
func (s *Storage[T]) ValuePtr(index uint32) (*T, bool) {
	return s.tree.ValuePtr(index)
}

// Has reports whether index is present.
func (s *Storage[T]) Has(index uint32) bool {
	return s.tree.Has(index)
}

// Count returns the number of occupied slots.
func (s *Storage[T]) Count() uint64 {
	return s.tree.Count()
}

// Set writes v at index at the given tick, allocating missing nodes and
// recording a journal diff for the pre-image.
func (s *Storage[T]) Set(tick uint64, index uint32, v T) error {
	if index >= bitmask.TreeCapacity {
		return fmt.Errorf("%w: index %d >= %d", ErrOutOfRange, index, uint32(bitmask.TreeCapacity))
	}

	old, existed := s.tree.Set(index, v)

	s.history.RecordSet(tick, index, existed, old)

	s.tick = tick

	return nil
}

// Remove deletes index if present at the given tick, recording a journal
// diff for the removed value. It returns whether anything was removed;
// removing an absent index, or one beyond TreeCapacity, is not an error.
func (s *Storage[T]) Remove(tick uint64, index uint32) bool {
	if index >= bitmask.TreeCapacity {
		return false
	}

	old, removed := s.tree.Remove(index)
	if !removed {
		return false
	}

	s.history.RecordRemove(tick, index, old)
	s.tick = tick

	return true
}

// markChanged records a journal diff for index as if Set had just run,
// without re-writing the stored value. Used by mutable query handles on
// their first write: the value is mutated in place through ValuePtr, and
// the pre-image captured here is whatever Get returned before that write.
func (s *Storage[T]) markChanged(tick uint64, index uint32, preImage T) {
	s.tree.MarkChanged(index)
	s.history.RecordSet(tick, index, true, preImage)
	s.tick = tick
}

// FirstFreeIndex returns the first unoccupied slot index, used by
// World.Spawn against the entity storage.
func (s *Storage[T]) FirstFreeIndex() (uint32, bool) {
	return s.tree.FirstFreeIndex()
}

// EnsureTick advances the journal's open tick without requiring a
// mutation, used by World to guarantee contiguous tick coverage across
// every storage every tick (a precondition Rollback's window check relies
// on; see journal.History.Rollback).
func (s *Storage[T]) EnsureTick(tick uint64) {
	s.history.EnsureTick(tick)
	s.tick = tick
}

// ClearChangedMasks clears the storage tree's changed summary bits. The
// journal is untouched.
func (s *Storage[T]) ClearChangedMasks() {
	s.tree.ClearChangedMasks()
}

// Rollback restores the storage to its state as of the end of targetTick,
// consuming and discarding journals newer than that tick.
func (s *Storage[T]) Rollback(targetTick uint64) error {
	if err := s.history.Rollback(targetTick, restoreApplier[T]{tree: s.tree}); err != nil {
		if errors.Is(err, journal.ErrBeyondWindow) {
			return fmt.Errorf("%w: component %d: %v", ErrRollbackBeyondWindow, s.id, err)
		}

		return fmt.Errorf("component %d: %w", s.id, err)
	}

	s.tick = targetTick

	return nil
}

// VerifyInvariants recomputes the storage tree's masks/counts and checks
// I1-I5 (see bitmask.Tree.VerifyInvariants), returning a wrapped
// ErrInvariantViolation on the first mismatch. The journal is not checked.
func (s *Storage[T]) VerifyInvariants() error {
	if err := s.tree.VerifyInvariants(); err != nil {
		return fmt.Errorf("%w: component %d: %v", ErrInvariantViolation, s.id, err)
	}

	return nil
}

// restoreApplier adapts a bitmask.Tree[T] to journal.RestoreApply[T] so
// History.Rollback can apply reconstructed state without importing
// bitmask itself.
type restoreApplier[T any] struct {
	tree *bitmask.Tree[T]
}

func (r restoreApplier[T]) Remove(index uint32)  { r.tree.RestoreRemove(index) }
func (r restoreApplier[T]) Set(index uint32, v T) { r.tree.RestoreSet(index, v) }

// anyStorage is the type-erased view of a Storage[T] that World needs to
// drive lifecycle operations (tick advancement, rollback, invariant
// checks) uniformly across heterogeneous component types stored as `any`
// in World's registry.
type anyStorage interface {
	ensureTick(tick uint64)
	clearChangedMasks()
	rollback(targetTick uint64) error
	verifyInvariants() error
	removeIndex(tick uint64, index uint32) bool
	has(index uint32) bool

	// masks/pageMasks/chunkMasks expose the tree's summary masks without
	// the caller needing to know the component's value type, so the
	// query engine can intersect across heterogeneous component types.
	masks() (presence, fullness, changed uint64)
	pageMasks(pageIdx int) (presence, fullness, changed uint64)
	chunkMasks(pageIdx, chunkIdx int) (presence, changed uint64)
}

func (s *Storage[T]) ensureTick(tick uint64)          { s.EnsureTick(tick) }
func (s *Storage[T]) clearChangedMasks()              { s.ClearChangedMasks() }
func (s *Storage[T]) rollback(targetTick uint64) error { return s.Rollback(targetTick) }
func (s *Storage[T]) verifyInvariants() error          { return s.VerifyInvariants() }
func (s *Storage[T]) has(index uint32) bool            { return s.tree.Has(index) }

func (s *Storage[T]) removeIndex(tick uint64, index uint32) bool {
	return s.Remove(tick, index)
}

func (s *Storage[T]) masks() (presence, fullness, changed uint64) {
	return s.tree.Masks()
}

func (s *Storage[T]) pageMasks(pageIdx int) (presence, fullness, changed uint64) {
	return s.tree.PageMasks(pageIdx)
}

func (s *Storage[T]) chunkMasks(pageIdx, chunkIdx int) (presence, changed uint64) {
	return s.tree.ChunkMasks(pageIdx, chunkIdx)
}
