// Package emitter provides a minimal typed publish/subscribe primitive used to
// decouple media and peer-connection components from the negotiation layer.
package emitter

import "sync"

// Emitter fans out values of type E to all subscribed handlers. Handlers run
// synchronously on the emitting goroutine, in subscription order.
type Emitter[E any] struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(E)
	closed   bool
}

// New creates an empty emitter.
func New[E any]() *Emitter[E] {
	return &Emitter[E]{handlers: make(map[int]func(E))}
}

// Subscribe registers a handler and returns a function that removes it.
func (e *Emitter[E]) Subscribe(fn func(E)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	if !e.closed {
		e.handlers[id] = fn
	}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
	}
}

// Emit delivers ev to every current subscriber. Emits after Close are dropped.
func (e *Emitter[E]) Emit(ev E) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return
	}
	fns := make([]func(E), 0, len(e.handlers))
	for id := 0; id < e.nextID; id++ {
		if fn, ok := e.handlers[id]; ok {
			fns = append(fns, fn)
		}
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Close detaches all subscribers. Further Subscribe calls are no-ops.
func (e *Emitter[E]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handlers = make(map[int]func(E))
}
