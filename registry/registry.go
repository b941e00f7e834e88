// Package registry keeps the latest known state of every call in the session.
//
// The Registry has a single writer, the session loop. Reads take a snapshot
// under a read lock so renderers and metrics may call in from elsewhere.
// Subscribers are notified synchronously after each mutation, on the
// writer's goroutine.
package registry

import (
	"errors"
	"sync"

	"github.com/lit-response/triageboard/event"
)

var ErrUnknownCallID = errors.New("unknown call id")

type ChangeKind int

const (
	Inserted ChangeKind = iota
	Replaced
	Approved
)

func (k ChangeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Approved:
		return "approved"
	default:
		return "unknown"
	}
}

type Change struct {
	Kind  ChangeKind
	Event event.Event
}

type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]event.Event

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

func New() *Registry {
	return &Registry{entries: map[string]event.Event{}, subs: map[int]func(Change){}}
}

// Upsert inserts a new call or replaces an existing one wholesale. The first
// insertion fixes the call's position in List.
func (r *Registry) Upsert(e event.Event) Change {
	e = e.Clone()
	r.mu.Lock()
	kind := Replaced
	if _, ok := r.entries[e.CallID]; !ok {
		kind = Inserted
		r.order = append(r.order, e.CallID)
	}
	r.entries[e.CallID] = e
	r.mu.Unlock()

	c := Change{Kind: kind, Event: e.Clone()}
	r.notify(c)
	return c
}

// ApproveDispatch is idempotent: approving twice reports changed=false the
// second time and leaves the entry as it was.
func (r *Registry) ApproveDispatch(callID string) (bool, error) {
	r.mu.Lock()
	e, ok := r.entries[callID]
	if !ok {
		r.mu.Unlock()
		return false, ErrUnknownCallID
	}
	if e.DispatchApproved {
		r.mu.Unlock()
		return false, nil
	}
	e.DispatchApproved = true
	r.entries[callID] = e
	r.mu.Unlock()

	r.notify(Change{Kind: Approved, Event: e.Clone()})
	return true, nil
}

func (r *Registry) Get(callID string) (event.Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[callID]
	return e.Clone(), ok
}

func (r *Registry) Has(callID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[callID]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List returns every call in first-seen order.
func (r *Registry) List() []event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]event.Event, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].Clone())
	}
	return out
}

// Filter returns the calls matching keep, in first-seen order.
func (r *Registry) Filter(keep func(event.Event) bool) []event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []event.Event
	for _, id := range r.order {
		if e := r.entries[id]; keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// CountBySeverity always carries all four severities.
func (r *Registry) CountBySeverity() map[event.Severity]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[event.Severity]int, len(event.Severities))
	for _, s := range event.Severities {
		out[s] = 0
	}
	for _, e := range r.entries {
		out[e.Severity]++
	}
	return out
}

func (r *Registry) CountApproved() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.DispatchApproved {
			n++
		}
	}
	return n
}

func (r *Registry) CountByCategory() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string]int{}
	for _, e := range r.entries {
		out[e.Category]++
	}
	return out
}

// Subscribe registers fn for every later change. The returned func removes it.
func (r *Registry) Subscribe(fn func(Change)) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Registry) notify(c Change) {
	r.subMu.Lock()
	fns := make([]func(Change), 0, len(r.subs))
	for id := 0; id < r.nextID; id++ {
		if fn, ok := r.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
