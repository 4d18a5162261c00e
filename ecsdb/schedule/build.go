package schedule

// Build constructs the dependency DAG for systems and levelizes it into
// wavefronts via Kahn's algorithm. groups declares the
// scheduling scopes referenced by systems' Group field and by before/after
// targets.
//
// Edge construction, in order:
//  1. system-level before/after, targeting another system's own ID,
//     gated on conflict(A,B);
//  2. group-level before/after, targeting a group ID (matching any system
//     nested under that group, directly or transitively), gated on
//     conflict(A,B) — group edges take precedence over the writer-reader
//     edge a component dependency would otherwise add in the opposite
//     direction;
//  3. per-component-type writer-reader edges (and a writer-writer chain
//     serializing multiple writers of the same type), skipped where a
//     group edge already forced the opposite direction for that pair.
//
// If the resulting graph has a cycle, the unordered remainder is emitted
// as a single terminal wavefront (a diagnostic, not a build failure).
func Build[Comp comparable, SID comparable](systems []System[Comp, SID], groups []Group[SID]) (Wavefronts[SID], Diagnostics) {
	b := newBuilder(systems, groups)
	b.addSystemLevelEdges()
	b.addGroupLevelEdges()
	b.addComponentEdges()

	return b.levelize()
}

type edgeKey[SID comparable] struct {
	from, to SID
}

type builder[Comp comparable, SID comparable] struct {
	order       []SID // registration order, for deterministic tie-breaking
	systems     map[SID]System[Comp, SID]
	groups      map[SID]Group[SID]
	members     map[SID][]SID // group ID -> systems nested under it (direct or transitive)
	adjacency   map[SID]map[SID]struct{}
	suppressed  map[edgeKey[SID]]struct{} // (from,to) pairs a group edge has forbidden in that direction
	writersOf   map[Comp][]SID            // in registration order
	readersOf   map[Comp][]SID
	allCompKeys []Comp
}

func newBuilder[Comp comparable, SID comparable](systems []System[Comp, SID], groups []Group[SID]) *builder[Comp, SID] {
	b := &builder[Comp, SID]{
		systems:    make(map[SID]System[Comp, SID], len(systems)),
		groups:     make(map[SID]Group[SID], len(groups)),
		members:    make(map[SID][]SID),
		adjacency:  make(map[SID]map[SID]struct{}, len(systems)),
		suppressed: make(map[edgeKey[SID]]struct{}),
		writersOf:  make(map[Comp][]SID),
		readersOf:  make(map[Comp][]SID),
	}

	for _, s := range systems {
		b.order = append(b.order, s.ID)
		b.systems[s.ID] = s
		b.adjacency[s.ID] = make(map[SID]struct{})

		seenW := make(map[Comp]struct{}, len(s.Writes))
		for _, c := range s.Writes {
			if _, ok := seenW[c]; ok {
				continue
			}

			seenW[c] = struct{}{}
			b.writersOf[c] = append(b.writersOf[c], s.ID)
			b.noteCompKey(c)
		}

		seenR := make(map[Comp]struct{}, len(s.Reads))
		for _, c := range s.Reads {
			if _, ok := seenR[c]; ok {
				continue
			}

			seenR[c] = struct{}{}
			b.readersOf[c] = append(b.readersOf[c], s.ID)
			b.noteCompKey(c)
		}
	}

	for _, g := range groups {
		b.groups[g.ID] = g
	}

	for _, s := range systems {
		for _, g := range b.ancestry(s.ID) {
			b.members[g] = append(b.members[g], s.ID)
		}
	}

	return b
}

func (b *builder[Comp, SID]) noteCompKey(c Comp) {
	for _, existing := range b.allCompKeys {
		if existing == c {
			return
		}
	}

	b.allCompKeys = append(b.allCompKeys, c)
}

// ancestry returns the chain of group IDs a system is nested under:
// its own group, that group's parent, and so on.
func (b *builder[Comp, SID]) ancestry(sid SID) []SID {
	s, ok := b.systems[sid]
	if !ok || !s.HasGroup {
		return nil
	}

	var chain []SID

	current := s.Group
	hasCurrent := true
	seen := map[SID]struct{}{}

	for hasCurrent {
		if _, loop := seen[current]; loop {
			break // malformed group parent cycle; stop rather than spin
		}

		seen[current] = struct{}{}
		chain = append(chain, current)

		g, ok := b.groups[current]
		if !ok {
			break
		}

		current, hasCurrent = g.Parent, g.HasParent
	}

	return chain
}

func (b *builder[Comp, SID]) conflict(a, bID SID) bool {
	sa, okA := b.systems[a]
	sb, okB := b.systems[bID]

	if !okA || !okB {
		return false
	}

	touchesA := make(map[Comp]bool, len(sa.Reads)+len(sa.Writes))
	for _, c := range sa.Reads {
		touchesA[c] = touchesA[c] || false
	}

	writesA := make(map[Comp]struct{}, len(sa.Writes))
	for _, c := range sa.Writes {
		writesA[c] = struct{}{}
		touchesA[c] = true
	}

	for _, c := range sa.Reads {
		touchesA[c] = true
	}

	writesB := make(map[Comp]struct{}, len(sb.Writes))
	for _, c := range sb.Writes {
		writesB[c] = struct{}{}
	}

	touchesB := make(map[Comp]struct{}, len(sb.Reads)+len(sb.Writes))
	for _, c := range sb.Reads {
		touchesB[c] = struct{}{}
	}

	for _, c := range sb.Writes {
		touchesB[c] = struct{}{}
	}

	for c := range touchesA {
		if _, shared := touchesB[c]; !shared {
			continue
		}

		if _, wA := writesA[c]; wA {
			return true
		}

		if _, wB := writesB[c]; wB {
			return true
		}
	}

	return false
}

func (b *builder[Comp, SID]) addEdge(from, to SID) {
	if from == to {
		return
	}

	b.adjacency[from][to] = struct{}{}
}

func (b *builder[Comp, SID]) suppress(from, to SID) {
	b.suppressed[edgeKey[SID]{from: from, to: to}] = struct{}{}
}

func (b *builder[Comp, SID]) isSuppressed(from, to SID) bool {
	_, ok := b.suppressed[edgeKey[SID]{from: from, to: to}]
	return ok
}

func (b *builder[Comp, SID]) addSystemLevelEdges() {
	for _, sid := range b.order {
		s := b.systems[sid]

		for _, target := range s.Before {
			if other, ok := b.systems[target]; ok && b.conflict(sid, other.ID) {
				b.addEdge(sid, other.ID)
			}
		}

		for _, target := range s.After {
			if other, ok := b.systems[target]; ok && b.conflict(sid, other.ID) {
				b.addEdge(other.ID, sid)
			}
		}
	}
}

func (b *builder[Comp, SID]) addGroupLevelEdges() {
	for _, sid := range b.order {
		for _, g := range b.ancestry(sid) {
			grp, ok := b.groups[g]
			if !ok {
				continue
			}

			for _, target := range grp.Before {
				for _, member := range b.members[target] {
					if member == sid {
						continue
					}

					if b.conflict(sid, member) {
						b.addEdge(sid, member)
						b.suppress(member, sid)
					}
				}
			}

			for _, target := range grp.After {
				for _, member := range b.members[target] {
					if member == sid {
						continue
					}

					if b.conflict(sid, member) {
						b.addEdge(member, sid)
						b.suppress(sid, member)
					}
				}
			}
		}
	}
}

func (b *builder[Comp, SID]) addComponentEdges() {
	for _, c := range b.allCompKeys {
		writers := b.writersOf[c]
		readers := b.readersOf[c]

		for _, w := range writers {
			for _, r := range readers {
				if w == r {
					continue
				}

				if b.isSuppressed(w, r) {
					continue
				}

				b.addEdge(w, r)
			}
		}

		for i := 0; i+1 < len(writers); i++ {
			w1, w2 := writers[i], writers[i+1]
			if b.isSuppressed(w1, w2) {
				continue
			}

			b.addEdge(w1, w2)
		}
	}
}

func (b *builder[Comp, SID]) levelize() (Wavefronts[SID], Diagnostics) {
	indegree := make(map[SID]int, len(b.order))
	for _, sid := range b.order {
		indegree[sid] = 0
	}

	for from, targets := range b.adjacency {
		_ = from

		for to := range targets {
			indegree[to]++
		}
	}

	remaining := make(map[SID]struct{}, len(b.order))
	for _, sid := range b.order {
		remaining[sid] = struct{}{}
	}

	var waves Wavefronts[SID]

	for len(remaining) > 0 {
		var wave []SID

		for _, sid := range b.order {
			if _, ok := remaining[sid]; !ok {
				continue
			}

			if indegree[sid] == 0 {
				wave = append(wave, sid)
			}
		}

		if len(wave) == 0 {
			// Cycle: emit everything left as one terminal diagnostic wave.
			var rest []SID
			for _, sid := range b.order {
				if _, ok := remaining[sid]; ok {
					rest = append(rest, sid)
				}
			}

			waves = append(waves, rest)

			return waves, Diagnostics{HadCycle: true}
		}

		for _, sid := range wave {
			delete(remaining, sid)

			for to := range b.adjacency[sid] {
				if _, ok := remaining[to]; ok {
					indegree[to]--
				}
			}
		}

		waves = append(waves, wave)
	}

	return waves, Diagnostics{}
}
