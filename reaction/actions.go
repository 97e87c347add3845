/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reaction

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/conductor/mergescheduler"
	"chainguard.dev/conductor/session"
	"chainguard.dev/conductor/workflow"
	"github.com/chainguard-dev/clog"
)

// MergeSubmitter enqueues merge work. Satisfied by mergescheduler.Scheduler.
type MergeSubmitter interface {
	Submit(ctx context.Context, req mergescheduler.Request) error
}

// PipelineRunner runs a correction pass in-process against a session branch.
// Used when no workflow runner is configured.
type PipelineRunner interface {
	Repair(ctx context.Context, s *session.Session, prompt string) error
}

// Notifier delivers human-facing signals about a session's pull request.
type Notifier interface {
	Comment(ctx context.Context, prNumber int, body string) error
	Label(ctx context.Context, prNumber int, label string) error
}

// EscalationLabel marks pull requests that need human attention.
const EscalationLabel = "needs-human"

// DefaultActions is the production Actions implementation: respawns go to the
// workflow runner (or the in-process pipeline), merges go to the scheduler,
// and notifications land on the pull request.
type DefaultActions struct {
	dispatcher   workflow.Dispatcher
	workflowFile string
	submitter    MergeSubmitter
	notifier     Notifier
	pipeline     PipelineRunner
}

// ActionsOption configures DefaultActions.
type ActionsOption func(*DefaultActions)

// WithPipelineRunner runs respawns in-process instead of through the workflow
// runner.
func WithPipelineRunner(p PipelineRunner) ActionsOption {
	return func(a *DefaultActions) { a.pipeline = p }
}

// NewDefaultActions constructs the production Actions implementation.
func NewDefaultActions(dispatcher workflow.Dispatcher, workflowFile string, submitter MergeSubmitter, notifier Notifier, opts ...ActionsOption) (*DefaultActions, error) {
	switch {
	case dispatcher == nil:
		return nil, errors.New("dispatcher cannot be nil")
	case workflowFile == "":
		return nil, errors.New("workflow file cannot be empty")
	case submitter == nil:
		return nil, errors.New("merge submitter cannot be nil")
	case notifier == nil:
		return nil, errors.New("notifier cannot be nil")
	}
	a := &DefaultActions{
		dispatcher:   dispatcher,
		workflowFile: workflowFile,
		submitter:    submitter,
		notifier:     notifier,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// RespawnAgents relaunches correction work for the session. The agents run
// out of process; their outcome re-enters the system as CI and review facts.
func (a *DefaultActions) RespawnAgents(ctx context.Context, s *session.Session, prompt string) error {
	if a.pipeline != nil {
		clog.FromContext(ctx).With("session", s.ID).Info("Running in-process correction pass")
		return a.pipeline.Repair(ctx, s, prompt)
	}
	return a.dispatcher.Dispatch(ctx, a.workflowFile, workflow.Input{
		Branch:            s.Branch,
		IntegrationBranch: s.Branch,
		BaseBranch:        s.BaseBranch,
		PRNumber:          s.PRNumber,
		Prompt:            prompt,
	})
}

// Notify posts a comment on the session's pull request.
func (a *DefaultActions) Notify(ctx context.Context, s *session.Session, message string) error {
	if s.PRNumber == 0 {
		clog.FromContext(ctx).With("session", s.ID).Info("No PR for session, dropping notification")
		return nil
	}
	return a.notifier.Comment(ctx, s.PRNumber, message)
}

// Escalate hands the session to a human: a label plus an explanatory comment
// on the pull request.
func (a *DefaultActions) Escalate(ctx context.Context, s *session.Session, reason string) error {
	log := clog.FromContext(ctx).With("session", s.ID).With("reason", reason)
	log.Warn("Escalating session")

	if s.PRNumber == 0 {
		return nil
	}
	if err := a.notifier.Label(ctx, s.PRNumber, EscalationLabel); err != nil {
		return fmt.Errorf("labeling PR #%d: %w", s.PRNumber, err)
	}
	body := fmt.Sprintf("Automation has stopped for this pull request: %s. A human needs to take over.", reason)
	if err := a.notifier.Comment(ctx, s.PRNumber, body); err != nil {
		return fmt.Errorf("commenting on PR #%d: %w", s.PRNumber, err)
	}
	return nil
}

// AutoMerge submits the session's branch to the merge scheduler.
func (a *DefaultActions) AutoMerge(ctx context.Context, s *session.Session) error {
	return a.submitter.Submit(ctx, mergescheduler.Request{
		SessionID: s.ID,
		Source:    s.Branch,
		Target:    s.BaseBranch,
		PRNumber:  s.PRNumber,
	})
}
