package event

import (
	"reflect"
	"sync"
)

type queued struct {
	typ   reflect.Type
	event any
}

// Bus is a double-buffered event bus. Events emitted before a SwapBuffers
// call become readable after it, and DispatchAll delivers them in emission
// order regardless of type so handler side effects are reproducible.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []queued
	back     []queued
	handlers map[reflect.Type][]func(any) error
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]queued, 0, 32),
		back:     make([]queued, 0, 32),
		handlers: make(map[reflect.Type][]func(any) error),
	}
}

// Emit queues an event into the back buffer.
func Emit[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.back = append(b.back, queued{typ: t, event: event})
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], func(ev any) error {
		return fn(ev.(T))
	})
}

// SwapBuffers rotates back→front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// Pending reports how many events wait in the back buffer.
func (b *Bus) Pending() int { return len(b.back) }

// Reset drops every queued event in both buffers.
func (b *Bus) Reset() {
	b.front = b.front[:0]
	b.back = b.back[:0]
}

// DispatchAll delivers all front-buffer events to their subscribed handlers
// and stops at the first handler error. The front buffer is consumed either way.
func (b *Bus) DispatchAll() error {
	defer func() { b.front = b.front[:0] }()
	for _, q := range b.front {
		for _, h := range b.handlers[q.typ] {
			if err := h(q.event); err != nil {
				return err
			}
		}
	}
	return nil
}
