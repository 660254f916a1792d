package session

// HeapSnapshot is the result of snapshot_heap (spec §4.8): heap
// occupancy counters plus the repr of every currently-bound global, so
// diff_heap can compute added/removed/repr-changed deltas without
// re-reading the live (and by-then-possibly-mutated) session.
type HeapSnapshot struct {
	LiveObjects     int
	FreeSlots       int
	TotalSlots      int
	InternedStrings int
	Variables       map[string]string // name -> repr
}

// HeapDiff is diff_heap's result (spec §4.8).
type HeapDiff struct {
	Added       []string
	Removed     []string
	ReprChanged []string
}

// SnapshotHeap records the current heap occupancy and variable reprs
// (spec §4.8 "snapshot_heap").
func (s *Session) SnapshotHeap() HeapSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.VM.Heap.Stats()
	vars := make(map[string]string, len(s.VM.Globals.Globals))
	for name, v := range s.VM.Globals.Globals {
		repr, perr := s.VM.Repr(v)
		if perr != nil {
			repr = "<unreprable>"
		}
		vars[name] = repr
	}
	return HeapSnapshot{
		LiveObjects:     stats.LiveObjects,
		FreeSlots:       stats.FreeSlots,
		TotalSlots:      stats.TotalSlots,
		InternedStrings: stats.InternedStrings,
		Variables:       vars,
	}
}

// DiffHeap computes the variable-level delta between two snapshots taken
// earlier via SnapshotHeap (spec §4.8 "diff_heap").
func DiffHeap(before, after HeapSnapshot) HeapDiff {
	var diff HeapDiff
	for name, afterRepr := range after.Variables {
		beforeRepr, existed := before.Variables[name]
		if !existed {
			diff.Added = append(diff.Added, name)
			continue
		}
		if beforeRepr != afterRepr {
			diff.ReprChanged = append(diff.ReprChanged, name)
		}
	}
	for name := range before.Variables {
		if _, stillPresent := after.Variables[name]; !stillPresent {
			diff.Removed = append(diff.Removed, name)
		}
	}
	return diff
}
