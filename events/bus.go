// Package events provides typed publish/subscribe channels for notifications
// raised by the session layer.
package events

import (
	"sort"
	"sync"
)

// Bus delivers values of one notification kind to its subscribers in
// subscription order. Handlers run on the publisher's goroutine.
type Bus[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(T)
}

// Subscribe registers fn and returns a handle that removes it.
func (b *Bus[T]) Subscribe(fn func(T)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]func(T))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	return &Subscription{release: func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}}
}

// Publish calls every current subscriber with v. Subscribers may subscribe or
// release from inside a handler.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(T), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(v)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is a handle to a registered handler.
type Subscription struct {
	once    sync.Once
	release func()
}

// Release unregisters the handler. Safe to call more than once.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(s.release)
}

// Group collects subscriptions so a component can drop them all on teardown.
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add tracks s and returns it.
func (g *Group) Add(s *Subscription) *Subscription {
	g.mu.Lock()
	g.subs = append(g.subs, s)
	g.mu.Unlock()
	return s
}

// Release releases every tracked subscription.
func (g *Group) Release() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.Release()
	}
}
