/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main wires the conductor service: webhook ingress, reaction engine,
// merge scheduler, inactivity monitor, and the optional in-process quality
// pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/conductor/agentexec"
	"chainguard.dev/conductor/agentexec/claude"
	"chainguard.dev/conductor/agentexec/openai"
	"chainguard.dev/conductor/config"
	"chainguard.dev/conductor/events"
	"chainguard.dev/conductor/githubauth"
	"chainguard.dev/conductor/mergescheduler"
	"chainguard.dev/conductor/pipeline"
	"chainguard.dev/conductor/reaction"
	"chainguard.dev/conductor/session"
	"chainguard.dev/conductor/webhook"
	"chainguard.dev/conductor/workflow"
	"chainguard.dev/conductor/worktree"
	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config.Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		clog.FatalContextf(ctx, "validating config: %v", err)
	}

	clients, err := githubauth.New(ctx, githubauth.Credentials{
		Token:             cfg.GitHubToken,
		AppID:             cfg.GitHubAppID,
		AppInstallationID: cfg.GitHubInstallationID,
		AppPrivateKeyPath: cfg.GitHubPrivateKeyPath,
	})
	if err != nil {
		clog.FatalContextf(ctx, "building github clients: %v", err)
	}

	bus := events.NewBus(events.WithSink(logSink{}))
	store := session.NewStore()

	policy := reaction.DefaultPolicy()
	if cfg.PolicyPath != "" {
		policy, err = reaction.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			clog.FatalContextf(ctx, "loading policy: %v", err)
		}
	}

	notifier, err := reaction.NewGitHubNotifier(clients.REST, cfg.GitHubOwner, cfg.GitHubRepo)
	if err != nil {
		clog.FatalContextf(ctx, "creating notifier: %v", err)
	}

	merger, err := mergescheduler.NewGitHubMerger(clients.REST, cfg.GitHubOwner, cfg.GitHubRepo, cfg.MergeMethod)
	if err != nil {
		clog.FatalContextf(ctx, "creating merger: %v", err)
	}
	readiness, err := mergescheduler.NewPRReadiness(clients.GraphQL, cfg.GitHubOwner, cfg.GitHubRepo)
	if err != nil {
		clog.FatalContextf(ctx, "creating readiness checker: %v", err)
	}

	// The escalator and the actions reference each other through the
	// scheduler; acts is bound after construction and only read once the
	// scheduler's run loop is serving.
	var acts reaction.Actions
	escalator := func(ctx context.Context, req mergescheduler.Request, reason string) {
		log := clog.FromContext(ctx).With("branch", req.Source)
		s, err := store.ByBranch(req.Source)
		if err != nil {
			log.With("error", err).Warn("No session for abandoned merge request")
			return
		}
		updated, err := store.Update(s.ID, func(s *session.Session) error {
			s.State = session.StateEscalated
			s.Escalated = true
			return nil
		})
		if err != nil {
			log.With("error", err).Error("Failed to mark session escalated")
			return
		}
		if acts != nil {
			if err := acts.Escalate(ctx, updated, reason); err != nil {
				log.With("error", err).Error("Failed to escalate session")
			}
		}
	}

	scheduler, err := mergescheduler.NewScheduler(merger, bus,
		mergescheduler.WithReadiness(readiness),
		mergescheduler.WithEscalator(escalator))
	if err != nil {
		clog.FatalContextf(ctx, "creating merge scheduler: %v", err)
	}

	dispatcher := workflow.Disabled()
	workflowFile := cfg.WorkflowFile
	if workflowFile != "" {
		dispatcher, err = workflow.NewActionsDispatcher(clients.REST, cfg.GitHubOwner, cfg.GitHubRepo, cfg.MainBranch)
		if err != nil {
			clog.FatalContextf(ctx, "creating workflow dispatcher: %v", err)
		}
	} else {
		workflowFile = "conductor.yaml"
	}

	var actionOpts []reaction.ActionsOption
	if cfg.WorkflowFile == "" {
		repairer, err := buildRepairer(ctx, &cfg, clients, notifier, bus)
		if err != nil {
			clog.FatalContextf(ctx, "building in-process pipeline: %v", err)
		}
		if repairer != nil {
			actionOpts = append(actionOpts, reaction.WithPipelineRunner(repairer))
		}
	}

	defaultActions, err := reaction.NewDefaultActions(dispatcher, workflowFile, scheduler, notifier, actionOpts...)
	if err != nil {
		clog.FatalContextf(ctx, "creating actions: %v", err)
	}
	acts = defaultActions

	limits := session.Limits{
		MaxCIRetries:     cfg.MaxRetriesCI,
		MaxReviewRetries: cfg.MaxRetriesReview,
		AutoMerge:        cfg.AutoMerge,
	}
	engine := reaction.NewEngine(store, bus, policy, limits, cfg.IntegrationPrefix, defaultActions,
		reaction.WithBaseBranch(cfg.MainBranch))

	monitor, err := reaction.NewMonitor(store, engine, cfg.EscalateAfter)
	if err != nil {
		clog.FatalContextf(ctx, "creating inactivity monitor: %v", err)
	}

	if cfg.WebhookSecret == "" {
		clog.WarnContext(ctx, "WEBHOOK_SECRET is not set, webhook signature verification is disabled")
	}
	ingress, err := webhook.NewIngress([]byte(cfg.WebhookSecret), engine,
		webhook.WithSessionOpener(engine))
	if err != nil {
		clog.FatalContextf(ctx, "creating webhook ingress: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /webhooks/github", ingress)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	if cfg.EnablePprof {
		metricsMux.HandleFunc("/debug/pprof/", pprof.Index)
		metricsMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		metricsMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		clog.InfoContextf(egCtx, "Starting conductor on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		err := scheduler.Run(egCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		err := monitor.Run(egCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(egCtx), 10*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}

// buildRepairer assembles the in-process quality pipeline when provider API
// keys are configured. Returns nil when no provider is available; respawns
// then fall back to the (disabled) workflow dispatcher.
func buildRepairer(ctx context.Context, cfg *config.Config, clients *githubauth.Clients, notifier *reaction.GitHubNotifier, bus *events.Bus) (*pipeline.Repairer, error) {
	executors := make(map[agentexec.Provider]agentexec.Executor)
	if cfg.AnthropicAPIKey != "" {
		exec, err := claude.New(anthropic.NewClient(anthropicoption.WithAPIKey(cfg.AnthropicAPIKey)))
		if err != nil {
			return nil, fmt.Errorf("creating claude executor: %w", err)
		}
		executors[agentexec.ProviderClaude] = exec
	}
	if cfg.OpenAIAPIKey != "" {
		exec, err := openai.New(openaisdk.NewClient(openaioption.WithAPIKey(cfg.OpenAIAPIKey)))
		if err != nil {
			return nil, fmt.Errorf("creating openai executor: %w", err)
		}
		executors[agentexec.ProviderOpenAI] = exec
	}
	if len(executors) == 0 {
		clog.InfoContext(ctx, "No provider API keys configured, in-process pipeline disabled")
		return nil, nil
	}

	agents := agentexec.DefaultAgents()
	if cfg.AgentsPath != "" {
		var err error
		agents, err = agentexec.LoadAgents(cfg.AgentsPath)
		if err != nil {
			return nil, fmt.Errorf("loading agent roster: %w", err)
		}
	}

	pipe, err := pipeline.New(executors, bus)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	trees, err := worktree.New(clients.TokenSource, cfg.GitHubOwner, cfg.GitHubRepo)
	if err != nil {
		return nil, fmt.Errorf("creating worktree manager: %w", err)
	}

	return pipeline.NewRepairer(pipe, trees, agents, cfg.MaxAttempts,
		pipeline.WithCommentPoster(notifier),
		pipeline.WithAgentTimeout(cfg.AgentTimeout))
}

// logSink mirrors every published event into the structured log, which is
// the poor man's audit trail until an external collaborator subscribes.
type logSink struct{}

func (logSink) Record(ctx context.Context, ev events.Event) {
	clog.FromContext(ctx).With("kind", string(ev.Kind)).Debug("Event published")
}
