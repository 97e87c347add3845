/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package config_test

import (
	"context"
	"testing"
	"time"

	"chainguard.dev/conductor/config"
	"github.com/sethvargo/go-envconfig"
)

func validConfig() config.Config {
	return config.Config{
		GitHubToken:       "ghp_test",
		GitHubOwner:       "octo",
		GitHubRepo:        "repo",
		WebhookSecret:     "hunter2",
		MainBranch:        "main",
		IntegrationPrefix: "integration/",
		PipelinePrefix:    "pipeline/",
		MaxRetriesCI:      3,
		MaxRetriesReview:  2,
		EscalateAfter:     2 * time.Hour,
		MergeMethod:       "squash",
		MaxAttempts:       2,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{{
		name:   "valid",
		mutate: func(*config.Config) {},
	}, {
		name: "app credentials instead of token",
		mutate: func(c *config.Config) {
			c.GitHubToken = ""
			c.GitHubAppID = 12345
			c.GitHubInstallationID = 678
			c.GitHubPrivateKeyPath = "/etc/conductor/key.pem"
		},
	}, {
		name:    "no auth at all",
		mutate:  func(c *config.Config) { c.GitHubToken = "" },
		wantErr: true,
	}, {
		name: "app id without installation",
		mutate: func(c *config.Config) {
			c.GitHubToken = ""
			c.GitHubAppID = 12345
			c.GitHubPrivateKeyPath = "/etc/conductor/key.pem"
		},
		wantErr: true,
	}, {
		name: "app id without key path",
		mutate: func(c *config.Config) {
			c.GitHubToken = ""
			c.GitHubAppID = 12345
			c.GitHubInstallationID = 678
		},
		wantErr: true,
	}, {
		name:    "integration prefix without slash",
		mutate:  func(c *config.Config) { c.IntegrationPrefix = "integration" },
		wantErr: true,
	}, {
		name:    "pipeline prefix without slash",
		mutate:  func(c *config.Config) { c.PipelinePrefix = "pipeline" },
		wantErr: true,
	}, {
		name: "main branch under integration prefix",
		mutate: func(c *config.Config) {
			c.MainBranch = "integration/main"
		},
		wantErr: true,
	}, {
		name:    "negative ci retries",
		mutate:  func(c *config.Config) { c.MaxRetriesCI = -1 },
		wantErr: true,
	}, {
		name:    "negative review retries",
		mutate:  func(c *config.Config) { c.MaxRetriesReview = -1 },
		wantErr: true,
	}, {
		name:    "zero escalation window",
		mutate:  func(c *config.Config) { c.EscalateAfter = 0 },
		wantErr: true,
	}, {
		name:    "negative agent timeout",
		mutate:  func(c *config.Config) { c.AgentTimeout = -time.Second },
		wantErr: true,
	}, {
		name:    "bogus merge method",
		mutate:  func(c *config.Config) { c.MergeMethod = "fast-forward" },
		wantErr: true,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("Validate() succeeded, want error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	// WEBHOOK_SECRET is deliberately absent: it is optional, and leaving it
	// unset turns off signature verification rather than failing startup.
	var cfg config.Config
	lookup := envconfig.MapLookuper(map[string]string{
		"GITHUB_OWNER": "octo",
		"GITHUB_REPO":  "repo",
		"GITHUB_TOKEN": "ghp_test",
	})
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup,
	}); err != nil {
		t.Fatalf("ProcessWith() = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.IntegrationPrefix != "integration/" {
		t.Errorf("IntegrationPrefix = %q", cfg.IntegrationPrefix)
	}
	if cfg.MaxRetriesCI != 3 || cfg.MaxRetriesReview != 2 {
		t.Errorf("retry budgets = %d/%d, want 3/2", cfg.MaxRetriesCI, cfg.MaxRetriesReview)
	}
	if cfg.EscalateAfter != 120*time.Minute {
		t.Errorf("EscalateAfter = %v, want 120m", cfg.EscalateAfter)
	}
	if cfg.MergeMethod != "squash" {
		t.Errorf("MergeMethod = %q, want squash", cfg.MergeMethod)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}
