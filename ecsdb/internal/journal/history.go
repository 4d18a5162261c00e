package journal

import (
	"errors"
	"fmt"

	"github.com/ecsforge/ecsdb/internal/bitmask"
)

// DefaultRetention is the number of sealed ticks retained beyond the open
// one, used when a caller requests retention <= 0. Any fixed bound >= 2
// works; 64 matches the window the rest of this package was tuned
// against.
const DefaultRetention = 64

// ErrBeyondWindow is returned by Rollback when targetTick is older than
// the oldest retained sealed journal.
var ErrBeyondWindow = errors.New("journal: rollback target is beyond retained window")

// History owns one component's journal deque: the currently open tick's
// diff tree plus up to Retention sealed trees for prior ticks.
type History[T any] struct {
	Retention int

	pool   *pool[T]
	open   *Tree[T]
	sealed []*Tree[T] // oldest first
}

// NewHistory constructs a History with the given retention (sealed-tick
// window). retention < 2 is clamped to 2: rollback needs at least the
// open tick plus one sealed tick to do anything useful.
func NewHistory[T any](retention int) *History[T] {
	if retention < 2 {
		retention = 2
	}

	return &History[T]{
		Retention: retention,
		pool:      newPool[T](),
	}
}

// EnsureTick makes tick the current open tick, sealing the previous open
// tree (if any) and evicting the oldest sealed tree if the deque would
// exceed Retention.
func (h *History[T]) EnsureTick(tick uint64) {
	if h.open != nil && h.open.Tag == tick {
		return
	}

	if h.open != nil {
		h.sealed = append(h.sealed, h.open)
		if len(h.sealed) > h.Retention {
			evicted := h.sealed[0]
			h.sealed = h.sealed[1:]
			h.pool.putTree(evicted)
		}
	}

	h.open = h.pool.getTree(tick)
}

// RecordSet records a Set(tick, index, _) against the journal.
// wasPresent reflects the storage
// tree's state immediately before this Set; oldValue is only meaningful
// when wasPresent is true.
func (h *History[T]) RecordSet(tick uint64, index uint32, wasPresent bool, oldValue T) {
	h.EnsureTick(tick)

	c, bit := h.pool.ensureChunk(h.open, index)

	switch {
	case wasPresent:
		switch {
		case c.created&bit != 0:
			// Already created this tick: keep created alone, store nothing.
		case c.changed&bit != 0 || c.removed&bit != 0:
			// First-wins: a diff is already recorded for this slot this tick.
		default:
			c.values[bitIndex(index)] = oldValue
			c.changed |= bit
		}
	case c.removed&bit != 0:
		// Was removed earlier this tick; this Set restores it net "changed".
		c.removed &^= bit
		c.changed |= bit
	default:
		c.created |= bit
	}
}

// RecordRemove records a Remove(tick, index) against the journal. It must
// only be called when the storage tree held a value at index immediately
// before the remove.
func (h *History[T]) RecordRemove(tick uint64, index uint32, oldValue T) {
	h.EnsureTick(tick)

	c, bit := h.pool.ensureChunk(h.open, index)

	if c.created&bit != 0 {
		// Pure add-then-remove within the same tick: invisible to rollback.
		c.created &^= bit

		if c.created|c.changed|c.removed == 0 {
			// The chunk records no diff any more: clear its summary bits (J3).
			pageIdx, chunkIdx, _ := bitmask.Split(index)
			pg := h.open.pages[pageIdx]
			pg.changed &^= uint64(1) << uint(chunkIdx)

			if pg.changed == 0 {
				h.open.changed &^= uint64(1) << uint(pageIdx)
			}
		}

		return
	}

	if c.changed&bit == 0 && c.removed&bit == 0 {
		c.values[bitIndex(index)] = oldValue
	}

	c.removed |= bit
	c.created &^= bit
	c.changed &^= bit
}

func bitIndex(index uint32) int {
	_, _, slot := bitmask.Split(index)
	return slot
}

// RestoreApply describes how Rollback should apply a reconstructed slot
// state back into the owning storage tree, without journaling the change.
type RestoreApply[T any] interface {
	Remove(index uint32)
	Set(index uint32, v T)
}

// Rollback undoes every recorded diff with tag > targetTick, applying the
// reconstructed tick-targetTick state through apply, then discards the
// consumed (now-redundant) sealed journals and makes targetTick the new
// open tick.
//
// It performs at most one apply call per touched slot (P5): no per-slot
// scan of the full address space, only mask-driven enumeration of slots
// that were actually touched by a consumed journal.
func (h *History[T]) Rollback(targetTick uint64, apply RestoreApply[T]) error {
	relevant, _, err := h.collectRelevant(targetTick)
	if err != nil {
		return err
	}

	if len(relevant) == 0 {
		h.pruneTo(targetTick)
		return nil
	}

	touched := map[uint32]struct{}{}
	for _, t := range relevant {
		t.forEachTouchedIndex(func(index uint32) { touched[index] = struct{}{} })
	}

	for index := range touched {
		removeSlot, newValue, restore := h.reconstruct(relevant, index)
		if removeSlot {
			apply.Remove(index)
		} else if restore {
			apply.Set(index, newValue)
		}
	}

	h.pruneTo(targetTick)

	return nil
}

// collectRelevant returns the sealed+open journals with Tag > targetTick,
// ordered oldest-to-newest.
func (h *History[T]) collectRelevant(targetTick uint64) ([]*Tree[T], uint64, error) {
	var oldestTag uint64

	var relevant []*Tree[T]

	haveOldest := false

	for _, t := range h.sealed {
		if !haveOldest {
			oldestTag = t.Tag
			haveOldest = true
		}

		if t.Tag > targetTick {
			relevant = append(relevant, t)
		}
	}

	if h.open != nil {
		if !haveOldest {
			oldestTag = h.open.Tag
			haveOldest = true
		}

		if h.open.Tag > targetTick {
			relevant = append(relevant, h.open)
		}
	}

	if haveOldest && targetTick < oldestTag && oldestTag != 0 {
		// targetTick predates everything we retained: only an error if we
		// actually had to consume diffs we can't fully account for, i.e.
		// the oldest retained journal's tag is itself > targetTick+1
		// meaning there is a gap. A targetTick of exactly one less than the
		// oldest retained tag is still reconstructable iff every journal
		// with Tag > targetTick was retained, which holds whenever
		// targetTick >= oldestTag-1. Anything older is out of window.
		if targetTick+1 < oldestTag {
			return nil, 0, fmt.Errorf("journal: %w (target=%d, oldest retained=%d)", ErrBeyondWindow, targetTick, oldestTag)
		}
	}

	return relevant, oldestTag, nil
}

// reconstruct scans relevant (oldest-to-newest) for index and returns the
// canonical state at targetTick.
func (h *History[T]) reconstruct(relevant []*Tree[T], index uint32) (remove bool, value T, restore bool) {
	sawCreated := false
	haveValue := false

	var earliestValue T

	for _, t := range relevant {
		s, ok := t.slot(index)
		if !ok {
			continue
		}

		// Only the oldest journal that actually touched this slot decides
		// the outcome; once it has, later (newer) journals' records for
		// the same slot are replays of state already superseded by the
		// rollback and must not override it.
		if sawCreated || haveValue {
			break
		}

		if s.created {
			sawCreated = true
			continue
		}

		if s.changed || s.removed {
			earliestValue = s.value
			haveValue = true
		}
	}

	if sawCreated && !haveValue {
		return true, value, false
	}

	if haveValue {
		return false, earliestValue, true
	}

	return false, value, false
}

// pruneTo discards journals with tag > targetTick (they have just been
// rolled back) and makes targetTick the new open tick.
func (h *History[T]) pruneTo(targetTick uint64) {
	kept := h.sealed[:0]

	for _, t := range h.sealed {
		if t.Tag > targetTick {
			h.pool.putTree(t)
			continue
		}

		kept = append(kept, t)
	}

	h.sealed = kept

	if h.open != nil && h.open.Tag > targetTick {
		h.pool.putTree(h.open)
		h.open = nil
	}

	h.EnsureTick(targetTick)
}

// Oldest returns the tag of the oldest retained journal and whether any
// journal is retained at all.
func (h *History[T]) Oldest() (uint64, bool) {
	if len(h.sealed) > 0 {
		return h.sealed[0].Tag, true
	}

	if h.open != nil {
		return h.open.Tag, true
	}

	return 0, false
}
