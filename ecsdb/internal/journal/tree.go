// Package journal implements the per-tick rollback diff tree that mirrors
// the shape of an internal/bitmask.Tree: the same three levels, the same
// fixed fanout of 64, so that the set of slots touched in a tick can be
// discovered with the same mask-intersection idiom used for queries.
//
// A journal.Tree holds exactly one tick's worth of diffs. The owning
// component storage keeps a bounded History of sealed Trees plus one open
// Tree, and drives sealing/eviction/rollback through it.
package journal

import (
	"sync"

	"github.com/ecsforge/ecsdb/internal/bitmask"
	"github.com/ecsforge/ecsdb/internal/bitutil"
)

// chunk records, for each of 64 slots, which of {created, changed, removed}
// applies and (for changed/removed) the pre-tick value. At most one of the
// three masks may be set per slot (J1), except that "created then
// overwritten in the same tick" is recorded as created alone.
type chunk[T any] struct {
	created uint64
	changed uint64
	removed uint64
	values  [bitmask.ChunkCapacity]T
}

// page fans out to 64 chunks and carries a changed-summary bit per child
// (J3): bit i is set iff chunk i recorded any diff at all (created, changed
// or removed).
type page[T any] struct {
	changed uint64
	chunks  [bitmask.Fanout]*chunk[T]
}

// Tree is one tick's diff tree.
type Tree[T any] struct {
	Tag     uint64
	changed uint64
	pages   [bitmask.Fanout]*page[T]
}

func newTree[T any](tick uint64) *Tree[T] {
	return &Tree[T]{Tag: tick}
}

func (t *Tree[T]) reset(tick uint64) {
	for i := range t.pages {
		t.pages[i] = nil
	}

	t.Tag = tick
	t.changed = 0
}

// Touched reports whether index has any recorded diff in this tree.
func (t *Tree[T]) Touched(index uint32) bool {
	pageIdx, chunkIdx, slot := bitmask.Split(index)

	p := t.pages[pageIdx]
	if p == nil {
		return false
	}

	c := p.chunks[chunkIdx]
	if c == nil {
		return false
	}

	bit := uint64(1) << uint(slot)

	return (c.created|c.changed|c.removed)&bit != 0
}

// slotState classifies a slot's recorded diff, if any.
type slotState[T any] struct {
	created bool
	changed bool
	removed bool
	value   T // meaningful only if changed || removed
}

func (t *Tree[T]) slot(index uint32) (slotState[T], bool) {
	pageIdx, chunkIdx, slotIdx := bitmask.Split(index)

	p := t.pages[pageIdx]
	if p == nil {
		return slotState[T]{}, false
	}

	c := p.chunks[chunkIdx]
	if c == nil {
		return slotState[T]{}, false
	}

	bit := uint64(1) << uint(slotIdx)
	if (c.created|c.changed|c.removed)&bit == 0 {
		return slotState[T]{}, false
	}

	s := slotState[T]{
		created: c.created&bit != 0,
		changed: c.changed&bit != 0,
		removed: c.removed&bit != 0,
	}
	if s.changed || s.removed {
		s.value = c.values[slotIdx]
	}

	return s, true
}

type pool[T any] struct {
	chunks sync.Pool
	pages  sync.Pool
	trees  sync.Pool
}

func newPool[T any]() *pool[T] {
	p := &pool[T]{}
	p.chunks.New = func() any { return new(chunk[T]) }
	p.pages.New = func() any { return new(page[T]) }
	p.trees.New = func() any { return new(Tree[T]) }

	return p
}

func (p *pool[T]) getTree(tick uint64) *Tree[T] {
	t := p.trees.Get().(*Tree[T]) //nolint:forcetypeassert // pool.New guarantees type
	t.reset(tick)

	return t
}

func (p *pool[T]) putTree(t *Tree[T]) {
	for _, pg := range t.pages {
		if pg == nil {
			continue
		}

		for _, c := range pg.chunks {
			if c == nil {
				continue
			}

			*c = chunk[T]{}
			p.chunks.Put(c)
		}

		*pg = page[T]{}
		p.pages.Put(pg)
	}

	p.trees.Put(t)
}

func (p *pool[T]) ensureChunk(t *Tree[T], index uint32) (c *chunk[T], bit uint64) {
	pageIdx, chunkIdx, slot := bitmask.Split(index)

	pg := t.pages[pageIdx]
	if pg == nil {
		pg = p.pages.Get().(*page[T]) //nolint:forcetypeassert // pool.New guarantees type
		*pg = page[T]{}
		t.pages[pageIdx] = pg
	}

	c = pg.chunks[chunkIdx]
	if c == nil {
		c = p.chunks.Get().(*chunk[T]) //nolint:forcetypeassert // pool.New guarantees type
		*c = chunk[T]{}
		pg.chunks[chunkIdx] = c
	}

	t.changed |= uint64(1) << uint(pageIdx)
	pg.changed |= uint64(1) << uint(chunkIdx)

	return c, uint64(1) << uint(slot)
}

// forEachTouchedIndex calls fn for every index with a recorded diff in t,
// in ascending order, using the three-level mask-run idiom.
func (t *Tree[T]) forEachTouchedIndex(fn func(index uint32)) {
	bitutil.ForEachBit(t.changed, func(pageIdx int) {
		p := t.pages[pageIdx]
		if p == nil {
			return
		}

		bitutil.ForEachBit(p.changed, func(chunkIdx int) {
			c := p.chunks[chunkIdx]
			if c == nil {
				return
			}

			live := c.created | c.changed | c.removed
			bitutil.ForEachBit(live, func(slot int) {
				fn(bitmask.Join(pageIdx, chunkIdx, slot))
			})
		})
	})
}
