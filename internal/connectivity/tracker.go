// Package connectivity keeps the online flag that gates sync.
package connectivity

import (
	"sync"
	"sync/atomic"
)

// Tracker holds the current online state and tells subscribers about
// transitions. Going offline never interrupts a sync already running; it
// only stops new ones from starting.
type Tracker struct {
	online atomic.Bool

	mu   sync.Mutex
	subs map[int]func(bool)
	next int
}

// NewTracker starts in the given state.
func NewTracker(online bool) *Tracker {
	t := &Tracker{subs: make(map[int]func(bool))}
	t.online.Store(online)
	return t
}

func (t *Tracker) Online() bool { return t.online.Load() }

// Set records the state and notifies subscribers when it changed.
func (t *Tracker) Set(online bool) {
	if t.online.Swap(online) == online {
		return
	}
	t.mu.Lock()
	fns := make([]func(bool), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe calls fn on every transition until cancel is called.
func (t *Tracker) Subscribe(fn func(online bool)) (cancel func()) {
	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}
