/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package mergescheduler serializes concurrent merge-readiness into a single
// consistent integration line. Requests are served by priority, then arrival
// order; a request whose dependencies have not merged is held, not failed;
// a conflicting merge is requeued exactly once before escalating.
package mergescheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"chainguard.dev/conductor/events"
	"github.com/chainguard-dev/clog"
)

// ErrConflict is returned by a Merger when the merge failed due to a
// conflicting concurrent change.
var ErrConflict = errors.New("merge conflict")

// Request is one unit of pending integration work.
type Request struct {
	SessionID string
	Source    string // branch to merge
	Target    string // integration branch receiving it
	PRNumber  int    // 0 when merging branch-to-branch without a PR
	Priority  int64
	DependsOn []string // source branches that must merge first
}

// Merger performs one merge attempt. Implementations return ErrConflict
// (possibly wrapped) for conflicting concurrent changes and any other error
// for infrastructure failures.
type Merger interface {
	Merge(ctx context.Context, req Request) error
}

// ReadinessChecker gates a request on live provider state (review decision
// and CI rollup). A request that is not ready is held and re-polled.
type ReadinessChecker interface {
	Ready(ctx context.Context, prNumber int) (ready bool, reason string, err error)
}

// Escalator receives requests the scheduler has given up on.
type Escalator func(ctx context.Context, req Request, reason string)

type pending struct {
	Request
	seq      uint64
	requeued bool
}

// Scheduler owns the merge queue. Merges are executed one at a time by Run;
// Submit may be called from any goroutine.
type Scheduler struct {
	merger    Merger
	readiness ReadinessChecker
	bus       *events.Bus
	escalate  Escalator
	pollEvery time.Duration

	mu     sync.Mutex
	seq    uint64
	queue  []*pending
	merged map[string]bool

	kick chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithReadiness gates merges on a live readiness check.
func WithReadiness(rc ReadinessChecker) SchedulerOption {
	return func(s *Scheduler) { s.readiness = rc }
}

// WithEscalator sets the callback invoked when a request is abandoned.
func WithEscalator(esc Escalator) SchedulerOption {
	return func(s *Scheduler) { s.escalate = esc }
}

// WithPollInterval overrides how often held requests are re-examined.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.pollEvery = d }
}

// NewScheduler constructs a Scheduler.
func NewScheduler(merger Merger, bus *events.Bus, opts ...SchedulerOption) (*Scheduler, error) {
	if merger == nil {
		return nil, errors.New("merger cannot be nil")
	}
	s := &Scheduler{
		merger:    merger,
		bus:       bus,
		pollEvery: 30 * time.Second,
		merged:    make(map[string]bool),
		kick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit enqueues a merge request and wakes the run loop.
func (s *Scheduler) Submit(ctx context.Context, req Request) error {
	switch {
	case req.Source == "":
		return errors.New("source branch cannot be empty")
	case req.Target == "":
		return errors.New("target branch cannot be empty")
	}

	s.mu.Lock()
	s.seq++
	s.queue = append(s.queue, &pending{Request: req, seq: s.seq})
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(ctx, events.Event{
			Kind: events.KindMergeQueued,
			Body: events.MergePayload{Source: req.Source, Target: req.Target, PRNumber: req.PRNumber},
		})
	}

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return nil
}

// Run drains the queue until the context is cancelled. Only one merge runs
// at a time; this is the serialization point for the integration line.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		s.drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.kick:
		case <-ticker.C:
		}
	}
}

// drain processes eligible requests until none remain eligible.
func (s *Scheduler) drain(ctx context.Context) {
	held := make(map[uint64]bool)
	for {
		if ctx.Err() != nil {
			return
		}
		p := s.next(held)
		if p == nil {
			return
		}
		s.process(ctx, p, held)
	}
}

// next picks the highest-priority eligible request, breaking ties by arrival
// order. Requests with unmerged dependencies or in the held set are skipped.
func (s *Scheduler) next(held map[uint64]bool) *pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *pending
	for _, p := range s.queue {
		if held[p.seq] || !s.depsMergedLocked(p) {
			continue
		}
		if best == nil || p.Priority > best.Priority || (p.Priority == best.Priority && p.seq < best.seq) {
			best = p
		}
	}
	return best
}

func (s *Scheduler) depsMergedLocked(p *pending) bool {
	for _, dep := range p.DependsOn {
		if !s.merged[dep] {
			return false
		}
	}
	return true
}

func (s *Scheduler) process(ctx context.Context, p *pending, held map[uint64]bool) {
	log := clog.FromContext(ctx).With("source", p.Source).With("target", p.Target)

	if s.readiness != nil && p.PRNumber > 0 {
		ready, reason, err := s.readiness.Ready(ctx, p.PRNumber)
		if err != nil {
			log.With("error", err).Warn("Readiness check failed, holding request")
			held[p.seq] = true
			return
		}
		if !ready {
			log.With("reason", reason).Info("Request not ready, holding")
			held[p.seq] = true
			return
		}
	}

	err := s.merger.Merge(ctx, p.Request)
	switch {
	case err == nil:
		log.Info("Merged")
		s.mu.Lock()
		s.remove(p.seq)
		s.merged[p.Source] = true
		s.mu.Unlock()
		if s.bus != nil {
			s.bus.Publish(ctx, events.Event{
				Kind: events.KindMergeCompleted,
				Body: events.MergePayload{Source: p.Source, Target: p.Target, PRNumber: p.PRNumber},
			})
		}

	case errors.Is(err, ErrConflict):
		if !p.requeued {
			log.Info("Merge conflict, requeueing once")
			s.mu.Lock()
			p.requeued = true
			s.seq++
			p.seq = s.seq // moves behind everything queued since, including higher-priority work
			s.mu.Unlock()
			held[p.seq] = true
			if s.bus != nil {
				s.bus.Publish(ctx, events.Event{
					Kind: events.KindMergeConflict,
					Body: events.MergePayload{Source: p.Source, Target: p.Target, PRNumber: p.PRNumber, Reason: "requeued"},
				})
			}
			return
		}
		reason := "merge conflict persisted after requeue"
		log.Warn("Merge conflict persisted, escalating")
		s.mu.Lock()
		s.remove(p.seq)
		s.mu.Unlock()
		if s.bus != nil {
			s.bus.Publish(ctx, events.Event{
				Kind: events.KindMergeConflict,
				Body: events.MergePayload{Source: p.Source, Target: p.Target, PRNumber: p.PRNumber, Reason: reason},
			})
		}
		if s.escalate != nil {
			s.escalate(ctx, p.Request, reason)
		}

	default:
		log.With("error", err).Warn("Merge attempt failed, holding request")
		held[p.seq] = true
	}
}

// remove drops the entry with the given seq. Caller holds the lock.
func (s *Scheduler) remove(seq uint64) {
	for i, p := range s.queue {
		if p.seq == seq {
			s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
			return
		}
	}
}

// MergedSources returns the source branches merged so far. Intended for
// tests and status reporting.
func (s *Scheduler) MergedSources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.merged))
	for b := range s.merged {
		out = append(out, b)
	}
	return out
}
