/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reaction

import (
	"fmt"
	"os"

	"chainguard.dev/conductor/session"
	"gopkg.in/yaml.v3"
)

// Rule is the configured response to one fact kind: an action template, a
// prompt handed to respawned agents, and a retry budget.
type Rule struct {
	Action     string `yaml:"action"`
	Prompt     string `yaml:"prompt"`
	MaxRetries int    `yaml:"max_retries"`
}

// Policy is the static fact-kind to rule mapping. Loaded once at startup and
// immutable for the remainder of the run.
type Policy struct {
	Rules map[string]Rule `yaml:"policies"`
}

var validActions = map[string]bool{
	string(session.ActionRespawnAgent): true,
	string(session.ActionNotify):       true,
	string(session.ActionEscalate):     true,
	string(session.ActionAutoMerge):    true,
}

// LoadPolicy reads a policy file, resolves ${ENV_VAR} references in its
// contents, and validates the result. Interpolation happens before
// validation so that a secret-bearing prompt still validates as written.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return ParsePolicy([]byte(os.ExpandEnv(string(data))))
}

// ParsePolicy parses and validates policy YAML.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultPolicy returns the policy used when no file is configured: respawn
// on CI and review failures, escalate on inactivity, merge on approval.
func DefaultPolicy() *Policy {
	return &Policy{Rules: map[string]Rule{
		string(session.InputCIFailed): {
			Action:     string(session.ActionRespawnAgent),
			Prompt:     "CI failed on this branch. Inspect the failing checks and fix the underlying problem.",
			MaxRetries: 3,
		},
		string(session.InputChangesRequested): {
			Action:     string(session.ActionRespawnAgent),
			Prompt:     "A reviewer requested changes. Address every review comment on the pull request.",
			MaxRetries: 2,
		},
		string(session.InputApproved): {
			Action: string(session.ActionAutoMerge),
		},
		string(session.InputInactive): {
			Action: string(session.ActionEscalate),
		},
	}}
}

// Validate rejects unknown actions and negative retry budgets at load time
// rather than at first use.
func (p *Policy) Validate() error {
	for kind, rule := range p.Rules {
		if !validActions[rule.Action] {
			return fmt.Errorf("policy for %q: unknown action %q", kind, rule.Action)
		}
		if rule.MaxRetries < 0 {
			return fmt.Errorf("policy for %q: max_retries cannot be negative", kind)
		}
	}
	return nil
}

// Rule returns the configured rule for a fact kind.
func (p *Policy) Rule(kind session.Input) (Rule, bool) {
	r, ok := p.Rules[string(kind)]
	return r, ok
}

// Limits derives the state machine's guard limits from the policy, falling
// back to the provided defaults for kinds the policy does not set.
func (p *Policy) Limits(defaults session.Limits) session.Limits {
	lim := defaults
	if r, ok := p.Rule(session.InputCIFailed); ok && r.MaxRetries > 0 {
		lim.MaxCIRetries = r.MaxRetries
	}
	if r, ok := p.Rule(session.InputChangesRequested); ok && r.MaxRetries > 0 {
		lim.MaxReviewRetries = r.MaxRetries
	}
	return lim
}
