/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config is the startup configuration surface: environment variables
// parsed once, validated once, then handed to the wiring as plain values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the full environment surface of the conductor binary.
type Config struct {
	Port        int  `env:"PORT,default=8080"`
	MetricsPort int  `env:"METRICS_PORT,default=2112"`
	EnablePprof bool `env:"ENABLE_PPROF,default=false"`

	// GitHub authentication: either a token or app credentials.
	GitHubToken          string `env:"GITHUB_TOKEN"`
	GitHubAppID          int64  `env:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `env:"GITHUB_APP_INSTALLATION_ID"`
	GitHubPrivateKeyPath string `env:"GITHUB_APP_PRIVATE_KEY_PATH"`

	// The orchestrated repository.
	GitHubOwner string `env:"GITHUB_OWNER,required"`
	GitHubRepo  string `env:"GITHUB_REPO,required"`

	// WebhookSecret is the shared HMAC key for webhook deliveries. Leaving it
	// unset disables signature verification on the ingress.
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// Branch topology.
	MainBranch        string `env:"MAIN_BRANCH,default=main"`
	IntegrationPrefix string `env:"INTEGRATION_PREFIX,default=integration/"`
	PipelinePrefix    string `env:"PIPELINE_PREFIX,default=pipeline/"`

	// Retry budgets and escalation.
	MaxRetriesCI     int           `env:"MAX_RETRIES_CI,default=3"`
	MaxRetriesReview int           `env:"MAX_RETRIES_REVIEW,default=2"`
	EscalateAfter    time.Duration `env:"ESCALATE_AFTER,default=120m"`
	AutoMerge        bool          `env:"AUTO_MERGE,default=false"`
	MergeMethod      string        `env:"MERGE_METHOD,default=squash"`

	// Agent execution.
	AgentTimeout time.Duration `env:"AGENT_TIMEOUT,default=0"` // 0 disables the per-agent timeout
	AgentsPath   string        `env:"AGENTS_PATH"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS,default=2"`

	// Reaction policy.
	PolicyPath string `env:"POLICY_PATH"`

	// Durable task runner.
	WorkflowFile string `env:"WORKFLOW_FILE"`

	// Provider API keys, consumed by the SDK clients.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
}

// Validate rejects inconsistent configuration at startup rather than at
// first use.
func (c *Config) Validate() error {
	if c.GitHubToken == "" && c.GitHubAppID == 0 {
		return errors.New("either GITHUB_TOKEN or GITHUB_APP_ID must be set")
	}
	if c.GitHubAppID != 0 {
		if c.GitHubInstallationID == 0 {
			return errors.New("GITHUB_APP_INSTALLATION_ID is required with GITHUB_APP_ID")
		}
		if c.GitHubPrivateKeyPath == "" {
			return errors.New("GITHUB_APP_PRIVATE_KEY_PATH is required with GITHUB_APP_ID")
		}
	}

	if !strings.HasSuffix(c.IntegrationPrefix, "/") {
		return fmt.Errorf("INTEGRATION_PREFIX must end with a slash, got %q", c.IntegrationPrefix)
	}
	if !strings.HasSuffix(c.PipelinePrefix, "/") {
		return fmt.Errorf("PIPELINE_PREFIX must end with a slash, got %q", c.PipelinePrefix)
	}
	if strings.HasPrefix(c.MainBranch, c.IntegrationPrefix) {
		return fmt.Errorf("MAIN_BRANCH %q must not live under INTEGRATION_PREFIX", c.MainBranch)
	}

	if c.MaxRetriesCI < 0 {
		return errors.New("MAX_RETRIES_CI cannot be negative")
	}
	if c.MaxRetriesReview < 0 {
		return errors.New("MAX_RETRIES_REVIEW cannot be negative")
	}
	if c.MaxAttempts < 0 {
		return errors.New("MAX_ATTEMPTS cannot be negative")
	}
	if c.EscalateAfter <= 0 {
		return errors.New("ESCALATE_AFTER must be positive")
	}
	if c.AgentTimeout < 0 {
		return errors.New("AGENT_TIMEOUT cannot be negative")
	}

	switch c.MergeMethod {
	case "merge", "squash", "rebase":
	default:
		return fmt.Errorf("MERGE_METHOD must be merge, squash, or rebase, got %q", c.MergeMethod)
	}

	return nil
}
