/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package reaction translates normalized facts into session transitions and
// side-effecting actions. The decision step is pure (session.Transition over
// a snapshot); this package adds idempotency, branch scoping, policy
// application, and action execution.
package reaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/conductor/events"
	"chainguard.dev/conductor/session"
	"github.com/chainguard-dev/clog"
)

// Outcome statuses reported for every handled fact. Silence is never used to
// signal "nothing to do": ignored facts always carry a reason.
const (
	StatusProcessed = "processed"
	StatusIgnored   = "ignored"
)

// Outcome describes what the engine did with a fact.
type Outcome struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state,omitempty"`
}

// Actions executes the side effects requested by session transitions.
// Implementations must be safe for concurrent use.
type Actions interface {
	RespawnAgents(ctx context.Context, s *session.Session, prompt string) error
	Notify(ctx context.Context, s *session.Session, message string) error
	Escalate(ctx context.Context, s *session.Session, reason string) error
	AutoMerge(ctx context.Context, s *session.Session) error
}

// Engine applies facts to sessions.
type Engine struct {
	store             *session.Store
	bus               *events.Bus
	policy            *Policy
	limits            session.Limits
	integrationPrefix string
	baseBranch        string
	actions           Actions
	seen              *seenCache
	metrics           *events.Metrics

	// async controls whether actions run in detached goroutines (production)
	// or inline (tests).
	async bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSynchronousActions makes the engine execute actions inline rather than
// in detached goroutines. Intended for tests.
func WithSynchronousActions() EngineOption {
	return func(e *Engine) { e.async = false }
}

// WithSeenTTL overrides the idempotency window (default one hour).
func WithSeenTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.seen = newSeenCache(ttl) }
}

// WithBaseBranch sets the base branch new sessions target (default "main").
func WithBaseBranch(branch string) EngineOption {
	return func(e *Engine) { e.baseBranch = branch }
}

// NewEngine constructs a reaction engine. The limits are defaults; per-kind
// retry budgets in the policy take precedence.
func NewEngine(store *session.Store, bus *events.Bus, policy *Policy, limits session.Limits, integrationPrefix string, actions Actions, opts ...EngineOption) *Engine {
	e := &Engine{
		store:             store,
		bus:               bus,
		policy:            policy,
		limits:            policy.Limits(limits),
		integrationPrefix: integrationPrefix,
		baseBranch:        "main",
		actions:           actions,
		seen:              newSeenCache(time.Hour),
		metrics:           events.NewMetrics("chainguard.conductor"),
		async:             true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleFact applies one fact. It is the single entry point for the webhook
// ingress and the inactivity monitor. The same fact delivered twice (same
// identity) is absorbed without re-applying the transition.
func (e *Engine) HandleFact(ctx context.Context, f Fact) (Outcome, error) {
	log := clog.FromContext(ctx).With("fact", string(f.Kind)).With("branch", f.Branch)

	if !strings.HasPrefix(f.Branch, e.integrationPrefix) {
		log.Info("Ignoring fact: not an integration branch")
		e.metrics.RecordFactIgnored(ctx, string(f.Kind), "not an integration branch")
		return Outcome{Status: StatusIgnored, Reason: "not an integration branch"}, nil
	}

	if e.seen.Observe(f.Identity()) {
		log.With("delivery", f.Identity()).Info("Ignoring fact: duplicate delivery")
		e.metrics.RecordFactIgnored(ctx, string(f.Kind), "duplicate delivery")
		return Outcome{Status: StatusIgnored, Reason: "duplicate delivery"}, nil
	}

	target, err := e.store.ByBranch(f.Branch)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			log.Info("Ignoring fact: no session for branch")
			e.metrics.RecordFactIgnored(ctx, string(f.Kind), "no session for branch")
			return Outcome{Status: StatusIgnored, Reason: "no session for branch"}, nil
		}
		return Outcome{}, fmt.Errorf("resolving session: %w", err)
	}

	var (
		before  session.State
		changed bool
		actions []session.Action
	)
	updated, err := e.store.Update(target.ID, func(s *session.Session) error {
		before = s.State
		if f.PRNumber > 0 && s.PRNumber == 0 {
			s.PRNumber = f.PRNumber
		}
		next, acts := session.Transition(s.Snapshot, f.Kind, e.limits)
		changed = next != s.Snapshot
		s.Snapshot = next
		actions = e.applyPolicy(f.Kind, acts)
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("updating session %s: %w", target.ID, err)
	}

	if !changed && len(actions) == 0 {
		log.With("state", string(before)).Info("Ignoring fact: no transition from current state")
		e.metrics.RecordFactIgnored(ctx, string(f.Kind), "no transition")
		return Outcome{Status: StatusIgnored, Reason: "no transition", SessionID: updated.ID, State: string(updated.State)}, nil
	}

	e.metrics.RecordFactProcessed(ctx, string(f.Kind))
	e.bus.Publish(ctx, events.Event{
		Kind: events.KindSessionTransitioned,
		Body: events.TransitionPayload{
			SessionID: updated.ID,
			From:      string(before),
			To:        string(updated.State),
			FactKind:  string(f.Kind),
		},
	})

	if updated.State == session.StateMerged {
		if err := e.store.Archive(updated.ID); err != nil {
			log.With("error", err).Warn("Failed to archive merged session")
		}
	}

	for _, act := range actions {
		e.bus.Publish(ctx, events.Event{
			Kind: events.KindActionEmitted,
			Body: events.ActionPayload{
				SessionID: updated.ID,
				Action:    string(act.Type),
				Reason:    act.Reason,
			},
		})
		e.execute(ctx, updated, act)
	}

	return Outcome{Status: StatusProcessed, SessionID: updated.ID, State: string(updated.State)}, nil
}

// OpenSession registers a new unit of work for an accepted issue and spawns
// the initial agent pass. The session owns the integration branch derived
// from the issue number for its whole lifetime.
func (e *Engine) OpenSession(ctx context.Context, issueNumber int, title, body string) (Outcome, error) {
	log := clog.FromContext(ctx).With("issue", issueNumber)

	branch := fmt.Sprintf("%sissue-%d", e.integrationPrefix, issueNumber)
	if _, err := e.store.ByBranch(branch); err == nil {
		log.Info("Ignoring issue: session already exists for branch")
		return Outcome{Status: StatusIgnored, Reason: "session already exists"}, nil
	}

	id := fmt.Sprintf("issue-%d", issueNumber)
	if _, err := e.store.Create(id, branch, e.baseBranch); err != nil {
		return Outcome{}, fmt.Errorf("creating session: %w", err)
	}

	// The initial spawn is dispatched immediately, so the session goes
	// straight to planning.
	opened, err := e.store.Update(id, func(s *session.Session) error {
		s.IssueNumber = issueNumber
		s.State = session.StatePlanning
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("updating session %s: %w", id, err)
	}

	e.bus.Publish(ctx, events.Event{
		Kind: events.KindSessionTransitioned,
		Body: events.TransitionPayload{
			SessionID: opened.ID,
			From:      string(session.StateCreated),
			To:        string(opened.State),
		},
	})

	prompt := title
	if body != "" {
		prompt = fmt.Sprintf("%s\n\n%s", title, body)
	}
	act := session.Action{Type: session.ActionRespawnAgent, Prompt: prompt}
	e.bus.Publish(ctx, events.Event{
		Kind: events.KindActionEmitted,
		Body: events.ActionPayload{SessionID: opened.ID, Action: string(act.Type)},
	})
	e.execute(ctx, opened, act)

	log.With("session", opened.ID).With("branch", branch).Info("Opened session")
	return Outcome{Status: StatusProcessed, SessionID: opened.ID, State: string(opened.State)}, nil
}

// applyPolicy materializes transition actions against the configured policy:
// the policy supplies the prompt for respawned agents and may downgrade a
// respawn to a notification or upgrade it to an immediate escalation.
func (e *Engine) applyPolicy(kind session.Input, acts []session.Action) []session.Action {
	rule, ok := e.policy.Rule(kind)
	if !ok {
		return acts
	}

	out := make([]session.Action, 0, len(acts))
	for _, act := range acts {
		if act.Type == session.ActionRespawnAgent {
			switch rule.Action {
			case string(session.ActionNotify):
				act = session.Action{
					Type:    session.ActionNotify,
					Message: fmt.Sprintf("automation disabled for %s; manual attention needed", kind),
				}
			case string(session.ActionEscalate):
				act = session.Action{
					Type:   session.ActionEscalate,
					Reason: fmt.Sprintf("policy escalates %s immediately", kind),
				}
			default:
				act.Prompt = rule.Prompt
			}
		}
		out = append(out, act)
	}
	return out
}

// execute runs one action. Long-running work (workflow dispatch, merges) must
// not block fact handling, so production engines run actions in detached
// goroutines whose failures re-enter the system as logged events.
func (e *Engine) execute(ctx context.Context, s *session.Session, act session.Action) {
	if !e.async {
		e.runAction(ctx, s, act)
		return
	}
	go e.runAction(context.WithoutCancel(ctx), s, act)
}

func (e *Engine) runAction(ctx context.Context, s *session.Session, act session.Action) {
	log := clog.FromContext(ctx).With("session", s.ID).With("action", string(act.Type))

	var err error
	switch act.Type {
	case session.ActionRespawnAgent:
		err = e.actions.RespawnAgents(ctx, s, act.Prompt)
	case session.ActionNotify:
		err = e.actions.Notify(ctx, s, act.Message)
	case session.ActionEscalate:
		err = e.actions.Escalate(ctx, s, act.Reason)
	case session.ActionAutoMerge:
		err = e.actions.AutoMerge(ctx, s)
	default:
		err = fmt.Errorf("unknown action type %q", act.Type)
	}
	if err != nil {
		log.With("error", err).Error("Action execution failed")
	}
}
