// Package events implements the client-side event registry (C3): a table
// mapping (kind, id) to either a blocked waiter or a detached callback, with
// a capped pre-notification buffer to resolve the race where a notification
// arrives before the waiter registers, and a one-shot drain that wakes every
// survivor with a sentinel value.
package events

import (
	"sync"

	"github.com/p2psignal/peerlink/cmn/nlog"
)

// DrainedValue is delivered to every handler still registered at drain
// time, and is also what WaitFor's internal channel receives in that case.
const DrainedValue uint32 = 0xFFFFFFFF

// maxNotified bounds the pre-notification queue per the design's "capped,
// e.g. 32" rule; excess notifications are logged and dropped rather than
// grown without bound.
const maxNotified = 32

type key struct {
	kind uint32
	id   uint32
}

type handler struct {
	cb func(value uint32)
}

type notification struct {
	key   key
	value uint32
}

// Registry is the per-session event table. Zero value is not usable; use
// New.
type Registry struct {
	mu       sync.Mutex
	handlers map[key]handler
	notified []notification
	drained  bool
}

func New() *Registry {
	return &Registry{handlers: make(map[key]handler)}
}

// RegisterCallback installs cb for (kind,id). If a matching notification is
// already queued, it is consumed and cb is invoked synchronously, in the
// caller's goroutine, before RegisterCallback returns. Returns false if the
// registry has already drained.
func (r *Registry) RegisterCallback(kind, id uint32, cb func(value uint32)) bool {
	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		return false
	}
	k := key{kind, id}
	for i, n := range r.notified {
		if n.key == k {
			r.notified = append(r.notified[:i], r.notified[i+1:]...)
			r.mu.Unlock()
			cb(n.value)
			return true
		}
	}
	r.handlers[k] = handler{cb: cb}
	r.mu.Unlock()
	return true
}

// WaitFor blocks the calling goroutine until (kind,id) fires or the
// registry drains, returning (value, true) or (0, false) respectively.
func (r *Registry) WaitFor(kind, id uint32) (uint32, bool) {
	ch := make(chan uint32, 1)
	ok := r.RegisterCallback(kind, id, func(value uint32) { ch <- value })
	if !ok {
		return 0, false
	}
	v := <-ch
	if v == DrainedValue {
		return 0, false
	}
	return v, true
}

// Invoke fires (kind,id) with value. If a handler is registered it is
// removed and called exactly once, in the invoker's goroutine; otherwise
// the notification is queued (and, past maxNotified, dropped with a log
// line) for a future RegisterCallback/WaitFor.
func (r *Registry) Invoke(kind, id, value uint32) {
	k := key{kind, id}

	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		return
	}
	h, found := r.handlers[k]
	if found {
		delete(r.handlers, k)
	}
	var dropped bool
	if !found {
		if len(r.notified) >= maxNotified {
			dropped = true
		} else {
			r.notified = append(r.notified, notification{key: k, value: value})
		}
	}
	r.mu.Unlock()

	switch {
	case found:
		h.cb(value)
	case dropped:
		nlog.Warningf("events: dropping notification kind=%d id=%d, notified queue full", kind, id)
	}
}

// Unregister removes a callback previously installed by RegisterCallback
// without invoking it, for callers whose result already arrived through a
// side channel instead of a future Invoke(kind,id,...) — e.g. a dedicated
// reply type the dispatcher never correlates through this registry. A
// no-op if nothing is registered for (kind,id) (already fired, or never
// registered).
func (r *Registry) Unregister(kind, id uint32) {
	r.mu.Lock()
	delete(r.handlers, key{kind, id})
	r.mu.Unlock()
}

// Drain marks the registry terminal: every handler still registered is
// invoked with DrainedValue (in the draining goroutine), and no further
// RegisterCallback/WaitFor calls succeed. Idempotent; returns true only the
// first time it actually drains.
func (r *Registry) Drain() bool {
	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		return false
	}
	r.drained = true
	survivors := r.handlers
	r.handlers = make(map[key]handler)
	r.notified = nil
	r.mu.Unlock()

	for _, h := range survivors {
		h.cb(DrainedValue)
	}
	return true
}

// Drained reports whether Drain has already run.
func (r *Registry) Drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drained
}
