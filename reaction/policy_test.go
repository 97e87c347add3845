/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reaction_test

import (
	"os"
	"path/filepath"
	"testing"

	"chainguard.dev/conductor/reaction"
	"chainguard.dev/conductor/session"
)

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := reaction.ParsePolicy([]byte(`
policies:
  ci.failed:
    action: respawn_agent
    prompt: "Fix the failing checks."
    max_retries: 5
  session.inactive:
    action: escalate
`))
	if err != nil {
		t.Fatalf("ParsePolicy() = %v", err)
	}

	rule, ok := p.Rule(session.InputCIFailed)
	if !ok {
		t.Fatal("Rule(ci.failed) missing")
	}
	if rule.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", rule.MaxRetries)
	}
	if rule.Prompt != "Fix the failing checks." {
		t.Errorf("Prompt = %q", rule.Prompt)
	}

	lim := p.Limits(session.Limits{MaxCIRetries: 3, MaxReviewRetries: 2})
	if lim.MaxCIRetries != 5 {
		t.Errorf("Limits().MaxCIRetries = %d, want the policy override 5", lim.MaxCIRetries)
	}
	if lim.MaxReviewRetries != 2 {
		t.Errorf("Limits().MaxReviewRetries = %d, want the default 2", lim.MaxReviewRetries)
	}
}

func TestParsePolicyRejectsBadRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{{
		name: "unknown action",
		yaml: "policies:\n  ci.failed:\n    action: reboot\n",
	}, {
		name: "negative retries",
		yaml: "policies:\n  ci.failed:\n    action: respawn_agent\n    max_retries: -1\n",
	}, {
		name: "malformed yaml",
		yaml: "policies: [",
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := reaction.ParsePolicy([]byte(tc.yaml)); err == nil {
				t.Error("ParsePolicy() succeeded, want error")
			}
		})
	}
}

func TestLoadPolicyExpandsEnv(t *testing.T) {
	t.Setenv("CONDUCTOR_TEST_PROMPT", "Address the review comments.")

	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(`
policies:
  review.changes_requested:
    action: respawn_agent
    prompt: "${CONDUCTOR_TEST_PROMPT}"
`), 0o600); err != nil {
		t.Fatalf("writing policy: %v", err)
	}

	p, err := reaction.LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() = %v", err)
	}
	rule, ok := p.Rule(session.InputChangesRequested)
	if !ok {
		t.Fatal("Rule(review.changes_requested) missing")
	}
	if rule.Prompt != "Address the review comments." {
		t.Errorf("Prompt = %q, want the interpolated value", rule.Prompt)
	}
}

func TestDefaultPolicyValidates(t *testing.T) {
	t.Parallel()
	if err := reaction.DefaultPolicy().Validate(); err != nil {
		t.Errorf("DefaultPolicy().Validate() = %v", err)
	}
}
