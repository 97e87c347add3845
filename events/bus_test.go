/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package events_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"chainguard.dev/conductor/events"
)

func TestBusDeliversInOrder(t *testing.T) {
	t.Parallel()
	bus := events.NewBus()

	var order []int
	for i := 0; i < 3; i++ {
		bus.Subscribe(events.KindSessionTransitioned, func(context.Context, events.Event) error {
			order = append(order, i)
			return nil
		})
	}

	bus.Publish(context.Background(), events.Event{Kind: events.KindSessionTransitioned})

	if len(order) != 3 {
		t.Fatalf("delivered to %d handlers, want 3", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Errorf("handler %d ran in position %d", got, i)
		}
	}
}

func TestBusKindScoping(t *testing.T) {
	t.Parallel()
	bus := events.NewBus()

	var transitioned, merged atomic.Int32
	bus.Subscribe(events.KindSessionTransitioned, func(context.Context, events.Event) error {
		transitioned.Add(1)
		return nil
	})
	bus.Subscribe(events.KindMergeCompleted, func(context.Context, events.Event) error {
		merged.Add(1)
		return nil
	})

	bus.Publish(context.Background(), events.Event{Kind: events.KindSessionTransitioned})

	if got := transitioned.Load(); got != 1 {
		t.Errorf("transitioned handler ran %d times, want 1", got)
	}
	if got := merged.Load(); got != 0 {
		t.Errorf("merge handler ran %d times, want 0", got)
	}
}

func TestBusIsolatesFailingHandlers(t *testing.T) {
	t.Parallel()
	bus := events.NewBus()

	var after atomic.Int32
	bus.Subscribe(events.KindActionEmitted, func(context.Context, events.Event) error {
		panic("subscriber bug")
	})
	bus.Subscribe(events.KindActionEmitted, func(context.Context, events.Event) error {
		return errors.New("transient failure")
	})
	bus.Subscribe(events.KindActionEmitted, func(context.Context, events.Event) error {
		after.Add(1)
		return nil
	})

	// Must not panic, and the healthy handler still observes the event.
	bus.Publish(context.Background(), events.Event{Kind: events.KindActionEmitted})

	if got := after.Load(); got != 1 {
		t.Errorf("handler after the failing ones ran %d times, want 1", got)
	}
}

func TestBusCancel(t *testing.T) {
	t.Parallel()
	bus := events.NewBus()

	var calls atomic.Int32
	sub := bus.Subscribe(events.KindMergeQueued, func(context.Context, events.Event) error {
		calls.Add(1)
		return nil
	})

	bus.Publish(context.Background(), events.Event{Kind: events.KindMergeQueued})
	sub.Cancel()
	sub.Cancel() // idempotent
	bus.Publish(context.Background(), events.Event{Kind: events.KindMergeQueued})

	if got := calls.Load(); got != 1 {
		t.Errorf("handler ran %d times, want 1 (cancel must unregister)", got)
	}
}

type recordingSink struct {
	kinds []events.Kind
}

func (s *recordingSink) Record(_ context.Context, ev events.Event) {
	s.kinds = append(s.kinds, ev.Kind)
}

func TestBusSinkSeesEverything(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	bus := events.NewBus(events.WithSink(sink))

	bus.Publish(context.Background(), events.Event{Kind: events.KindSessionTransitioned})
	bus.Publish(context.Background(), events.Event{Kind: events.KindMergeConflict})

	if len(sink.kinds) != 2 {
		t.Fatalf("sink recorded %d events, want 2", len(sink.kinds))
	}
	if sink.kinds[0] != events.KindSessionTransitioned || sink.kinds[1] != events.KindMergeConflict {
		t.Errorf("sink recorded %v in the wrong order", sink.kinds)
	}
}
