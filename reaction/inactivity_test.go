/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"chainguard.dev/conductor/events"
	"chainguard.dev/conductor/session"
)

// escalationRecorder is an Actions stub that only tracks escalations.
type escalationRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (a *escalationRecorder) RespawnAgents(context.Context, *session.Session, string) error {
	return nil
}
func (a *escalationRecorder) Notify(context.Context, *session.Session, string) error { return nil }
func (a *escalationRecorder) AutoMerge(context.Context, *session.Session) error      { return nil }
func (a *escalationRecorder) Escalate(_ context.Context, _ *session.Session, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
	return nil
}

func (a *escalationRecorder) escalations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.reasons...)
}

func TestMonitorSweepEscalatesIdleSessions(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	acts := &escalationRecorder{}
	engine := NewEngine(store, events.NewBus(), DefaultPolicy(),
		session.Limits{MaxCIRetries: 3, MaxReviewRetries: 2}, "integration/", acts,
		WithSynchronousActions())

	// A nanosecond timeout makes any existing session idle by the time the
	// sweep computes its cutoff.
	m, err := NewMonitor(store, engine, time.Nanosecond)
	if err != nil {
		t.Fatalf("NewMonitor() = %v", err)
	}

	if _, err := store.Create("issue-1", "integration/issue-1", "main"); err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if _, err := store.Update("issue-1", func(s *session.Session) error {
		s.State = session.StateImplementing
		return nil
	}); err != nil {
		t.Fatalf("Update() = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	m.sweep(context.Background())

	if got := acts.escalations(); len(got) != 1 {
		t.Fatalf("escalations = %d, want 1", len(got))
	}
	s, err := store.Get("issue-1")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if s.State != session.StateEscalated || !s.Escalated {
		t.Errorf("session = %q escalated=%v, want escalated", s.State, s.Escalated)
	}

	// The session is now terminal; a second sweep must not escalate again.
	time.Sleep(10 * time.Millisecond)
	m.sweep(context.Background())
	if got := acts.escalations(); len(got) != 1 {
		t.Errorf("escalations after second sweep = %d, want still 1", len(got))
	}
}

func TestNewMonitorValidation(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	engine := NewEngine(store, events.NewBus(), DefaultPolicy(),
		session.Limits{MaxCIRetries: 3, MaxReviewRetries: 2}, "integration/", &escalationRecorder{})

	if _, err := NewMonitor(nil, engine, time.Minute); err == nil {
		t.Error("NewMonitor(nil store) succeeded, want error")
	}
	if _, err := NewMonitor(store, nil, time.Minute); err == nil {
		t.Error("NewMonitor(nil engine) succeeded, want error")
	}
	if _, err := NewMonitor(store, engine, 0); err == nil {
		t.Error("NewMonitor(zero timeout) succeeded, want error")
	}
}
