package main

import "sync"

// Bus is a multicast channel of values. Handlers only see values
// published after they subscribed, in subscription order, on the
// publishing goroutine.
type Bus[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []busHandler[T]
}

type busHandler[T any] struct {
	id uint64
	fn func(T)
}

// Subscription identifies one registered handler.
type Subscription struct {
	unsubscribe func()
	once        sync.Once
}

// Unsubscribe removes the handler. Safe to call more than once and from
// inside a handler.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.unsubscribe)
}

func (b *Bus[T]) Subscribe(fn func(T)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, busHandler[T]{id: id, fn: fn})

	return &Subscription{unsubscribe: func() { b.remove(id) }}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, h := range b.handlers {
		if h.id == id {
			// Copy so a Publish iterating the old slice is unaffected.
			handlers := make([]busHandler[T], 0, len(b.handlers)-1)
			handlers = append(handlers, b.handlers[:i]...)
			b.handlers = append(handlers, b.handlers[i+1:]...)
			return
		}
	}
}

func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	handlers := b.handlers
	b.mu.Unlock()

	for _, h := range handlers {
		h.fn(v)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}
