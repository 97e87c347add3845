/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentexec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// roster is the on-disk shape of an agent roster file.
type roster struct {
	Agents []AgentSpec `yaml:"agents"`
}

// LoadAgents reads an agent roster from a YAML file, resolving ${ENV_VAR}
// references before parsing.
func LoadAgents(path string) ([]AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent roster: %w", err)
	}

	var r roster
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &r); err != nil {
		return nil, fmt.Errorf("parsing agent roster: %w", err)
	}
	if len(r.Agents) == 0 {
		return nil, fmt.Errorf("agent roster %s declares no agents", path)
	}

	seen := make(map[string]bool, len(r.Agents))
	for _, spec := range r.Agents {
		switch {
		case spec.Name == "":
			return nil, fmt.Errorf("agent roster %s: agent with empty name", path)
		case spec.Prompt == "":
			return nil, fmt.Errorf("agent %q: prompt cannot be empty", spec.Name)
		case seen[spec.Name]:
			return nil, fmt.Errorf("agent %q declared twice", spec.Name)
		}
		if _, err := ProviderFor(spec.Model); err != nil {
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}
		seen[spec.Name] = true
	}
	return r.Agents, nil
}

// DefaultAgents is the roster used when no file is configured: a reviewer
// and a security pass on Claude, plus a test audit on OpenAI.
func DefaultAgents() []AgentSpec {
	return []AgentSpec{{
		Name:   "code-reviewer",
		Role:   "review the change for correctness, clarity, and maintainability",
		Prompt: "Review this change as a senior engineer. Flag bugs, unclear naming, and avoidable complexity.",
		Model:  "claude-sonnet-4-5",
	}, {
		Name:   "security-auditor",
		Role:   "audit the change for security problems",
		Prompt: "Audit this change for security issues: injection, secrets in code, unsafe deserialization, missing authorization checks.",
		Model:  "claude-sonnet-4-5",
	}, {
		Name:   "test-auditor",
		Role:   "check that behavior changes carry tests",
		Prompt: "Check whether the behavior changes in this diff are covered by new or updated tests. Fail the change if coverage is missing.",
		Model:  "gpt-4o",
	}}
}
