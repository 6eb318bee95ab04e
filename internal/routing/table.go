package routing

import "sync/atomic"

// RouteTable holds the current immutable mapping from route ID to compiled
// route behind a single atomically-swapped reference.
//
// Reads are wait-free: Current dereferences the pointer and returns the
// snapshot without any synchronization. Writes are copy-on-write: a caller
// builds a complete replacement mapping and installs it with Publish.
// Callers must serialize Publish calls themselves (the Evaluator does this
// with its mutation mutex); readers are never affected by an in-progress
// publish.
type RouteTable struct {
	snapshot atomic.Pointer[map[string]*CompiledRoute]
}

// NewRouteTable creates a table seeded with the given mapping. The table
// takes ownership of the map; callers must not mutate it afterwards.
func NewRouteTable(initial map[string]*CompiledRoute) *RouteTable {
	if initial == nil {
		initial = map[string]*CompiledRoute{}
	}
	t := &RouteTable{}
	t.snapshot.Store(&initial)
	return t
}

// Current returns the mapping snapshot visible at call time. The returned
// map is shared and immutable: callers must treat it as read-only.
func (t *RouteTable) Current() map[string]*CompiledRoute {
	return *t.snapshot.Load()
}

// Publish installs mapping as the new current snapshot. Once Publish
// returns, every subsequent Current call on every goroutine observes the
// new mapping or a still-newer one. The table takes ownership of the map.
func (t *RouteTable) Publish(mapping map[string]*CompiledRoute) {
	if mapping == nil {
		mapping = map[string]*CompiledRoute{}
	}
	t.snapshot.Store(&mapping)
}

// clone returns a fresh copy of the current snapshot for copy-on-write
// mutation, sized with headroom for one insertion.
func (t *RouteTable) clone() map[string]*CompiledRoute {
	current := t.Current()
	next := make(map[string]*CompiledRoute, len(current)+1)
	for id, cr := range current {
		next[id] = cr
	}
	return next
}
