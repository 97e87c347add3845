/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pipeline fans a named set of quality agents out against a change
// in parallel waves, then drives bounded correction cycles against only the
// agents that failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"chainguard.dev/conductor/agentexec"
	"chainguard.dev/conductor/events"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Request is one pipeline run: a change, the agents to run against it, and
// the correction budget.
type Request struct {
	// ID correlates progress events for one run.
	ID     string
	Change agentexec.ChangeContext
	Agents []agentexec.AgentSpec

	// MaxAttempts is the number of correction cycles after the first wave.
	MaxAttempts int

	// AgentTimeout bounds a single agent call. Zero means the agent runs
	// until the outer context cancels.
	AgentTimeout time.Duration
}

// Cycle records which agents one correction cycle re-ran.
type Cycle struct {
	Attempt int
	Agents  []string
}

// Report is the outcome of a pipeline run: the final result per agent and
// the ordered log of correction cycles applied.
type Report struct {
	ID      string
	Results map[string]agentexec.Result
	Cycles  []Cycle

	// Passed is true iff no agent's final status is failed. Error-status
	// agents are reported but do not block, since they indicate
	// infrastructure faults rather than problems with the change.
	Passed bool

	// Duration is the wall clock of the whole run. Usage totals tokens and
	// agent time across every run, correction re-runs included.
	Duration time.Duration
	Usage    agentexec.Usage
}

// Pipeline runs agent waves. Provider backends are selected per agent by
// model prefix.
type Pipeline struct {
	executors map[agentexec.Provider]agentexec.Executor
	bus       *events.Bus
}

// New constructs a Pipeline over the given provider backends.
func New(executors map[agentexec.Provider]agentexec.Executor, bus *events.Bus) (*Pipeline, error) {
	if len(executors) == 0 {
		return nil, errors.New("at least one executor is required")
	}
	if bus == nil {
		return nil, errors.New("bus cannot be nil")
	}
	return &Pipeline{executors: executors, bus: bus}, nil
}

// Run executes wave 1 over every requested agent, then up to MaxAttempts
// correction cycles over the agents whose latest result is failed. Agents
// with status error are never re-run. Cancellation is cooperative: in-flight
// agent calls finish, but no new cycle starts once the context is done.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	switch {
	case req.ID == "":
		return nil, errors.New("request ID cannot be empty")
	case len(req.Agents) == 0:
		return nil, errors.New("at least one agent is required")
	}
	seen := make(map[string]bool, len(req.Agents))
	for _, spec := range req.Agents {
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate agent name %q", spec.Name)
		}
		seen[spec.Name] = true
	}

	log := clog.FromContext(ctx).With("request", req.ID)
	results := make(map[string]agentexec.Result, len(req.Agents))
	start := time.Now()

	report := &Report{ID: req.ID, Results: results}
	p.runWave(ctx, req, 0, req.Agents, req.Change, results, &report.Usage)

	for attempt := 1; attempt <= req.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			log.Info("Cancellation observed, skipping further correction cycles")
			break
		}
		retry := failedAgents(req.Agents, results)
		if len(retry) == 0 {
			break
		}

		names := agentNames(retry)
		p.bus.Publish(ctx, events.Event{
			Kind: events.KindCycleStarted,
			Body: events.WavePayload{RequestID: req.ID, Attempt: attempt, Agents: names},
		})
		log.With("attempt", attempt).With("agents", names).Info("Starting correction cycle")
		report.Cycles = append(report.Cycles, Cycle{Attempt: attempt, Agents: names})

		change := req.Change
		change.PriorResults = priorResults(results)
		p.runWave(ctx, req, attempt, retry, change, results, &report.Usage)
	}

	report.Passed = len(failedAgents(req.Agents, results)) == 0
	report.Duration = time.Since(start)
	log.With("passed", report.Passed).With("cycles", len(report.Cycles)).
		With("duration", report.Duration).Info("Pipeline run complete")
	return report, nil
}

// runWave executes one parallel wave. Every agent runs in isolation: a
// panicking or erroring agent folds into an error-status result without
// aborting the others.
func (p *Pipeline) runWave(ctx context.Context, req Request, attempt int, agents []agentexec.AgentSpec, change agentexec.ChangeContext, results map[string]agentexec.Result, total *agentexec.Usage) {
	names := agentNames(agents)
	p.bus.Publish(ctx, events.Event{
		Kind: events.KindWaveStarted,
		Body: events.WavePayload{RequestID: req.ID, Attempt: attempt, Agents: names},
	})

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	for _, spec := range agents {
		eg.Go(func() error {
			result := p.runAgent(egCtx, req, spec, change)
			mu.Lock()
			results[result.Name] = result
			total.Add(result.Usage)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait() // goroutines never return errors; failures are results

	p.bus.Publish(ctx, events.Event{
		Kind: events.KindWaveFinished,
		Body: events.WavePayload{RequestID: req.ID, Attempt: attempt, Agents: names},
	})
}

func (p *Pipeline) runAgent(ctx context.Context, req Request, spec agentexec.AgentSpec, change agentexec.ChangeContext) (result agentexec.Result) {
	log := clog.FromContext(ctx).With("request", req.ID).With("agent", spec.Name)

	// Stamped last so panic and error results carry a duration too.
	start := time.Now()
	defer func() { result.Usage.Duration = time.Since(start) }()

	defer func() {
		if r := recover(); r != nil {
			log.With("panic", r).Error("Agent panicked")
			result = agentexec.ErrorResult(spec.Name, fmt.Errorf("agent panicked: %v", r))
		}
	}()

	provider, err := agentexec.ProviderFor(spec.Model)
	if err != nil {
		return agentexec.ErrorResult(spec.Name, err)
	}
	exec, ok := p.executors[provider]
	if !ok {
		return agentexec.ErrorResult(spec.Name, fmt.Errorf("no executor configured for provider %q", provider))
	}

	if req.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.AgentTimeout)
		defer cancel()
	}

	result, err = exec.Execute(ctx, spec, change)
	if err != nil {
		log.With("error", err).Error("Agent execution failed")
		return agentexec.ErrorResult(spec.Name, err)
	}
	return result
}

// failedAgents returns the specs whose latest result has status failed, in
// request order.
func failedAgents(agents []agentexec.AgentSpec, results map[string]agentexec.Result) []agentexec.AgentSpec {
	var out []agentexec.AgentSpec
	for _, spec := range agents {
		if r, ok := results[spec.Name]; ok && r.Status == agentexec.StatusFailed {
			out = append(out, spec)
		}
	}
	return out
}

func agentNames(agents []agentexec.AgentSpec) []string {
	names := make([]string, 0, len(agents))
	for _, spec := range agents {
		names = append(names, spec.Name)
	}
	return names
}

// priorResults folds the accumulated results into the compact form handed to
// correction runs, ordered by agent name for stable prompts.
func priorResults(results map[string]agentexec.Result) []agentexec.PriorResult {
	out := make([]agentexec.PriorResult, 0, len(results))
	for _, r := range results {
		out = append(out, agentexec.PriorResult{
			Agent:    r.Name,
			Status:   string(r.Status),
			Findings: r.Findings,
			Summary:  r.Summary,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}
