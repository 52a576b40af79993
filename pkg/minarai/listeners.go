package minarai

import (
	"sync"
	"sync/atomic"
)

// ListenerFunc receives a dispatched event and its payload. The payload map is
// shared by every listener of the same dispatch.
type ListenerFunc func(ev Event, payload map[string]any)

// ListenerID identifies one registration; registering the same function twice
// yields two IDs.
type ListenerID uint64

type listener struct {
	id ListenerID
	fn ListenerFunc
}

// listenerRegistry keeps a copy-on-write list per event. Writers serialize on
// mu; dispatch reads a snapshot without locking.
type listenerRegistry struct {
	mu    sync.Mutex
	next  ListenerID
	lists [eventCount]atomic.Pointer[[]listener]
}

func (r *listenerRegistry) add(ev Event, fn ListenerFunc) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	var cur []listener
	if p := r.lists[ev].Load(); p != nil {
		cur = *p
	}
	next := make([]listener, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, listener{id: id, fn: fn})
	r.lists[ev].Store(&next)
	return id
}

func (r *listenerRegistry) remove(ev Event, id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.lists[ev].Load()
	if p == nil {
		return false
	}
	cur := *p
	for i, l := range cur {
		if l.id != id {
			continue
		}
		next := make([]listener, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		r.lists[ev].Store(&next)
		return true
	}
	return false
}

func (r *listenerRegistry) snapshot(ev Event) []listener {
	p := r.lists[ev].Load()
	if p == nil {
		return nil
	}
	return *p
}
