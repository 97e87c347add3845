/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/conductor/agentexec"
	"chainguard.dev/conductor/diffstat"
	"chainguard.dev/conductor/session"
	"chainguard.dev/conductor/worktree"
	"github.com/chainguard-dev/clog"
)

// CommentPoster posts a pipeline summary to a pull request.
type CommentPoster interface {
	Comment(ctx context.Context, prNumber int, body string) error
}

// Repairer runs the quality pipeline in-process against a session branch,
// used when no external workflow runner is configured. The change context is
// materialized from a leased clone of the repository.
type Repairer struct {
	pipe         *Pipeline
	trees        *worktree.Manager
	agents       []agentexec.AgentSpec
	maxAttempts  int
	agentTimeout time.Duration
	poster       CommentPoster
}

// RepairerOption configures a Repairer.
type RepairerOption func(*Repairer)

// WithCommentPoster posts each run's summary to the session's pull request.
func WithCommentPoster(p CommentPoster) RepairerOption {
	return func(r *Repairer) { r.poster = p }
}

// WithAgentTimeout bounds each agent call.
func WithAgentTimeout(d time.Duration) RepairerOption {
	return func(r *Repairer) { r.agentTimeout = d }
}

// NewRepairer constructs an in-process pipeline runner.
func NewRepairer(pipe *Pipeline, trees *worktree.Manager, agents []agentexec.AgentSpec, maxAttempts int, opts ...RepairerOption) (*Repairer, error) {
	switch {
	case pipe == nil:
		return nil, errors.New("pipeline cannot be nil")
	case trees == nil:
		return nil, errors.New("worktree manager cannot be nil")
	case len(agents) == 0:
		return nil, errors.New("at least one agent is required")
	case maxAttempts < 0:
		return nil, errors.New("max attempts cannot be negative")
	}
	r := &Repairer{pipe: pipe, trees: trees, agents: agents, maxAttempts: maxAttempts}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Repair leases a clone of the session branch, renders its diff against the
// base, and runs the full agent pipeline over it. The verdict is posted to
// the pull request when a poster is configured; CI and review outcomes
// re-enter the system through the webhook boundary as usual.
func (r *Repairer) Repair(ctx context.Context, s *session.Session, prompt string) error {
	log := clog.FromContext(ctx).With("session", s.ID).With("branch", s.Branch)

	lease, err := r.trees.Lease(ctx, s.Branch)
	if err != nil {
		return fmt.Errorf("leasing worktree: %w", err)
	}
	defer func() {
		if err := lease.Return(ctx); err != nil {
			log.With("error", err).Warn("Failed to return worktree lease")
		}
	}()

	diff, err := lease.DiffAgainst(ctx, s.BaseBranch)
	if err != nil {
		return fmt.Errorf("rendering diff: %w", err)
	}
	stats, err := diffstat.Parse(diff)
	if err != nil {
		return fmt.Errorf("summarizing diff: %w", err)
	}
	title, err := lease.Description()
	if err != nil {
		return fmt.Errorf("reading head commit: %w", err)
	}
	log.With("clone", lease.ID()).With("sha", lease.SHA()).
		With("stats", stats.String()).Info("Running repair pipeline")

	report, err := r.pipe.Run(ctx, Request{
		ID:     fmt.Sprintf("%s-%d", s.ID, time.Now().Unix()),
		Agents: r.agents,
		Change: agentexec.ChangeContext{
			Branch:      lease.Branch(),
			BaseBranch:  s.BaseBranch,
			PRNumber:    s.PRNumber,
			Description: prompt,
			Diff:        diff,
			Title:       title,
			HeadSHA:     lease.SHA(),
			Workdir:     lease.Dir(),
			Files:       worktree.ChangedFiles(diff),
		},
		MaxAttempts:  r.maxAttempts,
		AgentTimeout: r.agentTimeout,
	})
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	if !report.Passed {
		log.With("findings", len(report.FailedFindings())).Warn("Repair pipeline did not pass")
	}

	if r.poster != nil && s.PRNumber > 0 {
		var body strings.Builder
		if err := report.Render(&body); err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}
		fmt.Fprintf(&body, "\n%s\n", stats.String())
		if err := r.poster.Comment(ctx, s.PRNumber, body.String()); err != nil {
			return fmt.Errorf("posting pipeline summary: %w", err)
		}
	}
	return nil
}
