package ecsdb

import (
	"fmt"

	"github.com/ecsforge/ecsdb/internal/journal"
	"github.com/ecsforge/ecsdb/schedule"
)

// SystemID identifies a system or a group for scheduling purposes.
// Systems and groups share one identity space so a before/after
// target can name either.
type SystemID string

// Built-in group identities and their default edges: Initialization
// runs before Simulation, which runs before Cleanup, which runs before
// Destroy.
const (
	GroupInitialization SystemID = "ecsdb.group.initialization"
	GroupSimulation     SystemID = "ecsdb.group.simulation"
	GroupCleanup        SystemID = "ecsdb.group.cleanup"
	GroupDestroy        SystemID = "ecsdb.group.destroy"

	systemCleanupDestroyed SystemID = "ecsdb.system.cleanup_destroyed"
)

// Destroyed is the built-in marker component: entities carrying it
// have all their other components removed by the Cleanup-group system
// that World registers automatically on first Register call.
type Destroyed struct{}

// Options configures a new World.
type Options struct {
	// Retention is the number of sealed per-tick journals each component
	// storage keeps, beyond the currently open tick. Clamped to >= 2.
	// Zero selects journal.DefaultRetention.
	Retention int
}

// World owns the component registry, the entity allocator, the declared
// systems/groups, and the current tick. It is the only path to obtain a
// storage reference from a system.
type World struct {
	retention int

	storages        [maxComponents]anyStorage
	nextComponentID ComponentID

	entityStorage    *Storage[Entity]
	destroyedStorage *Storage[Destroyed]

	tick uint64

	entityGeneration uint64
	genOpen          genSnapshot
	genOpened        bool
	genSealed        []genSnapshot // oldest first

	groups           []schedule.Group[SystemID]
	userSystems      []schedule.System[ComponentID, SystemID]
	runFuncs         map[SystemID]func(Frame)
	cleanupRegistered bool
}

type genSnapshot struct {
	tick       uint64
	generation uint64
}

// NewWorld constructs an empty world with the built-in Entity and
// Destroyed storages and the four built-in scheduling groups already
// wired.
func NewWorld(opts Options) *World {
	retention := opts.Retention
	if retention <= 0 {
		retention = journal.DefaultRetention
	}

	w := &World{
		retention:       retention,
		nextComponentID: firstUserComponentID,
		runFuncs:        make(map[SystemID]func(Frame)),
	}

	w.entityStorage = NewStorage[Entity](entityComponentID, retention)
	w.destroyedStorage = NewStorage[Destroyed](destroyedComponentID, retention)
	w.storages[entityComponentID] = w.entityStorage
	w.storages[destroyedComponentID] = w.destroyedStorage

	w.groups = []schedule.Group[SystemID]{
		{ID: GroupInitialization},
		{ID: GroupSimulation, After: []SystemID{GroupInitialization}},
		{ID: GroupCleanup, After: []SystemID{GroupSimulation}},
		{ID: GroupDestroy, After: []SystemID{GroupCleanup}},
	}

	return w
}

// Tick returns the world's current tick.
func (w *World) Tick() uint64 { return w.tick }

// Register assigns component type T a stable small integer identifier and
// creates its storage lazily. Panics if the reserved component-id space
// (0-255) is exhausted; this is a configuration error, not a recoverable
// one.
func Register[T any](w *World) ComponentID {
	if int(w.nextComponentID) >= maxComponents {
		panic(fmt.Errorf("%w: id %d", ErrTooManyComponents, w.nextComponentID))
	}

	id := w.nextComponentID
	w.nextComponentID++

	w.storages[id] = NewStorage[T](id, w.retention)

	w.ensureCleanupSystemRegistered()

	return id
}

// mustStorage returns the registered storage for id, panicking (a
// contract violation) if it was never registered.
func (w *World) mustStorage(id ComponentID) anyStorage {
	s := w.storages[id]
	if s == nil {
		panic(fmt.Errorf("%w: id %d", ErrComponentNotRegistered, id))
	}

	return s
}

// StorageFor returns the typed storage registered for id. Panics if id
// was registered with a different type parameter or not at all.
func StorageFor[T any](w *World, id ComponentID) *Storage[T] {
	return storageOf[T](w, id)
}

// Spawn allocates a new Entity in the first free slot of the entity
// storage: it increments the global generation counter (skipping
// the reserved value 0 on wrap), finds the first free slot, and stores
// the Entity there.
func (w *World) Spawn() (Entity, error) {
	index, ok := w.entityStorage.FirstFreeIndex()
	if !ok {
		return NoEntity, ErrNoFreeSlot
	}

	w.entityGeneration++
	if w.entityGeneration&entityGenMask == 0 {
		w.entityGeneration++
	}

	e := NewEntity(index, w.entityGeneration)
	if err := w.entityStorage.Set(w.tick, index, e); err != nil {
		return NoEntity, err
	}

	return e, nil
}

// Despawn removes every registered component at e's index, including the
// Entity value itself, at the current tick. It is a no-op if e is stale
// (its generation does not match the live occupant).
func (w *World) Despawn(e Entity) {
	if live, ok := w.entityStorage.Get(e.Index()); !ok || live != e {
		return
	}

	w.removeAllAt(e.Index())
}

func (w *World) removeAllAt(index uint32) {
	for id := ComponentID(0); id < w.nextComponentID; id++ {
		s := w.storages[id]
		if s == nil {
			continue
		}

		s.removeIndex(w.tick, index)
	}
}

// AdvanceTick calls EnsureTick on every registered storage (guaranteeing
// contiguous tick coverage, which Rollback's window check relies on; see
// journal.History.Rollback) and then runs the scheduler's wavefronts in
// order, invoking each system's run function once with a Frame carrying
// the new tick.
func (w *World) AdvanceTick() error {
	w.tick++

	w.ensureTickAll(w.tick)

	wavefronts, _ := schedule.Build(w.systemsForSchedule(), w.groups)

	frame := Frame{Tick: w.tick}

	for _, wave := range wavefronts {
		for _, id := range wave {
			run, ok := w.runFuncs[id]
			if !ok {
				continue // group identities never appear in wavefronts, only systems do
			}

			run(frame)
		}
	}

	return nil
}

func (w *World) ensureTickAll(tick uint64) {
	for id := ComponentID(0); id < w.nextComponentID; id++ {
		if s := w.storages[id]; s != nil {
			s.ensureTick(tick)
		}
	}

	if !w.genOpened || w.genOpen.tick != tick {
		if w.genOpened {
			w.genSealed = append(w.genSealed, w.genOpen)
			if len(w.genSealed) > w.retention {
				w.genSealed = w.genSealed[1:]
			}
		}

		w.genOpen = genSnapshot{tick: tick, generation: w.entityGeneration}
		w.genOpened = true
	}
}

// RegisterSystem declares a schedulable system and its run function.
// spec.ID must be unique among previously registered systems.
func (w *World) RegisterSystem(spec schedule.System[ComponentID, SystemID], run func(Frame)) {
	w.userSystems = append(w.userSystems, spec)
	w.runFuncs[spec.ID] = run
}

func (w *World) ensureCleanupSystemRegistered() {
	if w.cleanupRegistered {
		return
	}

	w.cleanupRegistered = true

	w.runFuncs[systemCleanupDestroyed] = w.runCleanupDestroyed
}

// systemsForSchedule returns the declared user systems plus the built-in
// Destroyed cleanup system, whose Writes set is recomputed every call so
// it always conflicts with (and therefore serializes correctly against)
// every component type registered so far.
func (w *World) systemsForSchedule() []schedule.System[ComponentID, SystemID] {
	systems := make([]schedule.System[ComponentID, SystemID], 0, len(w.userSystems)+1)
	systems = append(systems, w.userSystems...)

	if w.cleanupRegistered {
		writes := make([]ComponentID, 0, w.nextComponentID)
		for id := ComponentID(0); id < w.nextComponentID; id++ {
			writes = append(writes, id)
		}

		systems = append(systems, schedule.System[ComponentID, SystemID]{
			ID:       systemCleanupDestroyed,
			Reads:    []ComponentID{destroyedComponentID},
			Writes:   writes,
			Group:    GroupCleanup,
			HasGroup: true,
		})
	}

	return systems
}

// runCleanupDestroyed removes every other component (and the Entity
// itself) from any slot that carries Destroyed.
func (w *World) runCleanupDestroyed(f Frame) {
	var toDespawn []uint32

	w.Each(QuerySpec{Required: []ComponentID{destroyedComponentID}}, func(index uint32) {
		toDespawn = append(toDespawn, index)
	})

	for _, index := range toDespawn {
		w.removeAllAt(index)
	}
}

// Rollback restores every registered component storage to its state as of
// the end of targetTick, discarding all journaled diffs newer than that
// tick, and restores the entity generation counter to the value recorded
// when targetTick was opened (see restoreGeneration).
func (w *World) Rollback(targetTick uint64) error {
	for id := ComponentID(0); id < w.nextComponentID; id++ {
		s := w.storages[id]
		if s == nil {
			continue
		}

		if err := s.rollback(targetTick); err != nil {
			return err
		}
	}

	w.entityGeneration = w.restoreGeneration(targetTick)
	w.tick = targetTick

	return nil
}

// restoreGeneration finds, among the sealed-plus-open generation
// snapshots, the one with the highest tick <= targetTick, and returns
// the generation counter value it recorded.
func (w *World) restoreGeneration(targetTick uint64) uint64 {
	best := w.entityGeneration
	haveBest := false
	bestTick := uint64(0)

	consider := func(s genSnapshot) {
		if s.tick > targetTick {
			return
		}

		if !haveBest || s.tick > bestTick {
			best = s.generation
			bestTick = s.tick
			haveBest = true
		}
	}

	for _, s := range w.genSealed {
		consider(s)
	}

	consider(w.genOpen)

	return best
}

// VerifyInvariants checks the storage-tree invariants (via each storage's
// own VerifyInvariants) across every registered component. The journal
// trees are not checked.
func (w *World) VerifyInvariants() error {
	for id := ComponentID(0); id < w.nextComponentID; id++ {
		s := w.storages[id]
		if s == nil {
			continue
		}

		if err := s.verifyInvariants(); err != nil {
			return err
		}
	}

	return nil
}

// ClearChangedMasks clears the changed summary masks of every registered
// storage. Call this once per tick after systems have run, before the
// next AdvanceTick, if changed-required queries should only ever see
// this tick's mutations.
func (w *World) ClearChangedMasks() {
	for id := ComponentID(0); id < w.nextComponentID; id++ {
		if s := w.storages[id]; s != nil {
			s.clearChangedMasks()
		}
	}
}
