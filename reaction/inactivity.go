/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reaction

import (
	"context"
	"errors"
	"time"

	"chainguard.dev/conductor/session"
	"github.com/chainguard-dev/clog"
)

// Monitor watches for sessions with no activity inside the timeout window and
// feeds an inactivity fact back through the engine, so stuck sessions take
// the same escalation path as every other signal.
type Monitor struct {
	store    *session.Store
	engine   *Engine
	timeout  time.Duration
	interval time.Duration
}

// NewMonitor constructs an inactivity monitor. The interval defaults to a
// tenth of the timeout, clamped to [30s, 5m].
func NewMonitor(store *session.Store, engine *Engine, timeout time.Duration) (*Monitor, error) {
	switch {
	case store == nil:
		return nil, errors.New("store cannot be nil")
	case engine == nil:
		return nil, errors.New("engine cannot be nil")
	case timeout <= 0:
		return nil, errors.New("timeout must be positive")
	}
	interval := timeout / 10
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return &Monitor{store: store, engine: engine, timeout: timeout, interval: interval}, nil
}

// Run sweeps for idle sessions until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	log := clog.FromContext(ctx)
	cutoff := time.Now().Add(-m.timeout)

	for _, s := range m.store.IdleSince(cutoff) {
		if s.Escalated || s.State.Terminal() {
			continue
		}
		log.With("session", s.ID).With("state", string(s.State)).Info("Session idle past timeout")
		if _, err := m.engine.HandleFact(ctx, Fact{
			Kind:   session.InputInactive,
			Branch: s.Branch,
			Time:   time.Now(),
		}); err != nil {
			log.With("session", s.ID).With("error", err).Error("Failed to apply inactivity fact")
		}
	}
}
