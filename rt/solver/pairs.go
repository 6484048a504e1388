package solver

import (
	"sort"

	"github.com/gekko3d/voxsync/rt/backend"
)

// pairTracker remembers which pairs were touching after the last step so each step can
// report only the edges.
type pairTracker[P comparable] struct {
	active  map[P]struct{}
	current map[P]struct{}
}

func newPairTracker[P comparable]() pairTracker[P] {
	return pairTracker[P]{
		active:  make(map[P]struct{}),
		current: make(map[P]struct{}),
	}
}

func (t *pairTracker[P]) reset() {
	clear(t.active)
	clear(t.current)
}

func (t *pairTracker[P]) begin() {
	clear(t.current)
}

func (t *pairTracker[P]) touch(p P) {
	t.current[p] = struct{}{}
}

// finish diffs this step's pairs against the previous step. Pairs that were not seen but
// for which carry returns true stay active without an edge.
func (t *pairTracker[P]) finish(carry func(P) bool, less func(a, b P) bool) (found, lost []P) {
	for p := range t.current {
		if _, ok := t.active[p]; !ok {
			found = append(found, p)
		}
	}
	for p := range t.active {
		if _, ok := t.current[p]; ok {
			continue
		}
		if carry(p) {
			t.current[p] = struct{}{}
			continue
		}
		lost = append(lost, p)
	}
	t.active, t.current = t.current, t.active
	sort.Slice(found, func(i, j int) bool { return less(found[i], found[j]) })
	sort.Slice(lost, func(i, j int) bool { return less(lost[i], lost[j]) })
	return found, lost
}

func contactKey(a, b backend.Handle) backend.ContactPair {
	if b < a {
		a, b = b, a
	}
	return backend.ContactPair{A: a, B: b}
}

func contactLess(a, b backend.ContactPair) bool {
	if a.A != b.A {
		return a.A < b.A
	}
	return a.B < b.B
}

func triggerLess(a, b backend.TriggerPair) bool {
	if a.Trigger != b.Trigger {
		return a.Trigger < b.Trigger
	}
	return a.Other < b.Other
}
