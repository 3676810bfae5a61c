// Package bus delivers form change notifications to subscribers filtered by
// field path.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

// Token identifies a subscription.
type Token uint64

// Handler receives published events.
type Handler[E any] func(E)

type subscriber[E any] struct {
	token   Token
	filters []fieldpath.Path
	fn      Handler[E]
	active  atomic.Bool
}

func (s *subscriber[E]) matches(p fieldpath.Path, global bool) bool {
	if len(s.filters) == 0 || global {
		return true
	}
	for _, f := range s.filters {
		if f.Overlaps(p) {
			return true
		}
	}
	return false
}

type pending[E any] struct {
	path   fieldpath.Path
	global bool
	event  E
}

// Bus fans events out to subscribers. Publishing from inside a handler
// enqueues the event behind the one being delivered, so handlers always see
// events in publish order and never re-enter each other.
type Bus[E any] struct {
	mu       sync.Mutex
	subs     []*subscriber[E]
	next     Token
	queue    []pending[E]
	draining bool
}

// New returns an empty bus.
func New[E any]() *Bus[E] { return &Bus[E]{} }

// Subscribe registers fn. With filters, fn only receives events whose path
// overlaps one of them (plus form-wide events); without, it receives all.
func (b *Bus[E]) Subscribe(fn Handler[E], filters ...fieldpath.Path) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	sub := &subscriber[E]{token: b.next, fn: fn}
	for _, f := range filters {
		sub.filters = append(sub.filters, fieldpath.Join(f))
	}
	sub.active.Store(true)
	b.subs = append(b.subs, sub)
	return sub.token
}

// Unsubscribe removes the subscription. It takes effect immediately, even for
// events already queued. Unknown tokens are ignored.
func (b *Bus[E]) Unsubscribe(token Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.token == token {
			sub.active.Store(false)
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of active subscriptions.
func (b *Bus[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers event for path. An empty path marks a form-wide event that
// reaches every subscriber.
//
// Events are delivered one at a time in publish order by whichever goroutine
// is draining the queue. When no drain is running the caller drains, so
// Publish returns after its event was handled. A publish made from a handler,
// or while another goroutine is draining, only enqueues: the event is
// delivered by that drain and Publish may return first.
func (b *Bus[E]) Publish(path fieldpath.Path, event E) {
	b.enqueue(pending[E]{path: path, global: path.IsRoot(), event: event})
}

// Broadcast delivers event to every subscriber regardless of filters. It is
// queued like Publish.
func (b *Bus[E]) Broadcast(event E) {
	b.enqueue(pending[E]{global: true, event: event})
}

func (b *Bus[E]) enqueue(item pending[E]) {
	b.mu.Lock()
	b.queue = append(b.queue, item)
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()
	b.drain()
}

func (b *Bus[E]) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		item := b.queue[0]
		b.queue = b.queue[1:]
		subs := append([]*subscriber[E](nil), b.subs...)
		b.mu.Unlock()

		for _, sub := range subs {
			if !sub.active.Load() || !sub.matches(item.path, item.global) {
				continue
			}
			b.deliver(sub, item.event)
		}
	}
}

func (b *Bus[E]) deliver(sub *subscriber[E], event E) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.draining = false
			b.mu.Unlock()
			panic(r)
		}
	}()
	sub.fn(event)
}
