// Package events provides the named-event capability the provider layers are
// built on. Listeners run synchronously on the emitting goroutine, in
// registration order (prepended listeners first).
package events

import (
	"slices"
	"sync"
)

// Listener receives the payload passed to Emit. Events without payload deliver nil.
type Listener func(payload any)

// Source is the subscription half of an Emitter.
type Source interface {
	On(event string, l Listener) (unsubscribe func())
	AddListener(event string, l Listener) (unsubscribe func())
	Once(event string, l Listener) (unsubscribe func())
	PrependListener(event string, l Listener) (unsubscribe func())
	PrependOnceListener(event string, l Listener) (unsubscribe func())
	RemoveAllListeners(events ...string)
	ListenerCount(event string) int
}

var _ Source = (*Emitter)(nil)

type registration struct {
	fn   Listener
	once bool
}

// Emitter dispatches named events to registered listeners.
// It is safe for concurrent use; listeners may subscribe or unsubscribe from
// inside a callback.
type Emitter struct {
	mu        sync.Mutex
	listeners map[string][]*registration
}

// NewEmitter creates an Emitter with no listeners.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[string][]*registration)}
}

// On appends a listener for event and returns a function removing it.
func (e *Emitter) On(event string, l Listener) func() {
	return e.add(event, &registration{fn: l}, false)
}

// AddListener is an alias of On.
func (e *Emitter) AddListener(event string, l Listener) func() {
	return e.On(event, l)
}

// Once appends a listener that is removed before its first invocation.
func (e *Emitter) Once(event string, l Listener) func() {
	return e.add(event, &registration{fn: l, once: true}, false)
}

// PrependListener registers a listener ahead of all existing ones.
func (e *Emitter) PrependListener(event string, l Listener) func() {
	return e.add(event, &registration{fn: l}, true)
}

// PrependOnceListener registers a one-shot listener ahead of all existing ones.
func (e *Emitter) PrependOnceListener(event string, l Listener) func() {
	return e.add(event, &registration{fn: l, once: true}, true)
}

func (e *Emitter) add(event string, r *registration, prepend bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prepend {
		e.listeners[event] = append([]*registration{r}, e.listeners[event]...)
	} else {
		e.listeners[event] = append(e.listeners[event], r)
	}

	return func() { e.remove(event, r) }
}

func (e *Emitter) remove(event string, r *registration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	regs := e.listeners[event]
	if i := slices.Index(regs, r); i >= 0 {
		regs = slices.Delete(slices.Clone(regs), i, i+1)
		if len(regs) == 0 {
			delete(e.listeners, event)
		} else {
			e.listeners[event] = regs
		}
	}
}

// RemoveAllListeners drops the listeners of the given events, or of every event when none is named.
func (e *Emitter) RemoveAllListeners(events ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(events) == 0 {
		e.listeners = make(map[string][]*registration)
		return
	}
	for _, event := range events {
		delete(e.listeners, event)
	}
}

// ListenerCount returns the number of listeners registered for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.listeners[event])
}

// Emit calls every listener of event with payload and reports whether any listener was registered.
func (e *Emitter) Emit(event string, payload any) bool {
	e.mu.Lock()
	regs := slices.Clone(e.listeners[event])
	kept := e.listeners[event][:0:0]
	for _, r := range e.listeners[event] {
		if !r.once {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, event)
	} else {
		e.listeners[event] = kept
	}
	e.mu.Unlock()

	for _, r := range regs {
		r.fn(payload)
	}
	return len(regs) > 0
}
