/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package events provides the in-process publish/subscribe hub that connects
// the orchestration components. Dispatch is synchronous and isolated: a
// subscriber that fails (error or panic) is logged and counted, and never
// prevents the remaining subscribers from observing the event.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
)

// Handler consumes a single event. Returned errors are logged by the bus and
// do not affect other handlers.
type Handler func(ctx context.Context, ev Event) error

// Sink receives every published event, regardless of kind. It is intended for
// durable external sinks (persistence, UI transport); delivery is
// fire-and-forget from the bus's perspective.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Bus is the in-process event hub.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[Kind][]*Subscription
	sink    Sink
	metrics *Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithSink attaches a durable sink that observes every published event.
func WithSink(s Sink) Option {
	return func(b *Bus) { b.sink = s }
}

// NewBus constructs an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[Kind][]*Subscription),
		metrics: NewMetrics("chainguard.conductor"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is the token returned by Subscribe; Cancel unregisters it.
type Subscription struct {
	bus  *Bus
	kind Kind
	id   uint64
	fn   Handler
}

// Cancel removes the subscription from the bus. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	handlers := s.bus.subs[s.kind]
	for i, h := range handlers {
		if h.id == s.id {
			s.bus.subs[s.kind] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	s.bus = nil
}

// Subscribe registers a handler for the given kind. Handlers run in
// registration order when an event of that kind is published.
func (b *Bus) Subscribe(kind Kind, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{bus: b, kind: kind, id: b.nextID, fn: fn}
	b.subs[kind] = append(b.subs[kind], sub)
	return sub
}

// Publish delivers the event to the sink (if any) and then synchronously to
// every subscriber for its kind, in registration order. Handler failures are
// contained: an error or panic from one handler is logged and the dispatch
// continues with the next.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	if b.sink != nil {
		b.sink.Record(ctx, ev)
	}

	b.mu.RLock()
	handlers := append([]*Subscription(nil), b.subs[ev.Kind]...)
	b.mu.RUnlock()

	b.metrics.RecordPublished(ctx, string(ev.Kind))

	for _, sub := range handlers {
		b.invoke(ctx, sub, ev)
	}
}

func (b *Bus) invoke(ctx context.Context, sub *Subscription, ev Event) {
	log := clog.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordHandlerFailure(ctx, string(ev.Kind))
			log.With("kind", ev.Kind).
				With("panic", fmt.Sprint(r)).
				Error("Event handler panicked")
		}
	}()

	if err := sub.fn(ctx, ev); err != nil {
		b.metrics.RecordHandlerFailure(ctx, string(ev.Kind))
		log.With("kind", ev.Kind).
			With("error", err).
			Warn("Event handler failed")
	}
}
