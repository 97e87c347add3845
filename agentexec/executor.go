/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agentexec defines the quality-agent execution contract shared by
// the provider backends. An agent is a role-scoped prompt run against a
// change; its verdict is a structured result, never free text.
package agentexec

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Status is an agent's verdict on a change.
type Status string

const (
	// StatusPassed means the agent found nothing blocking.
	StatusPassed Status = "passed"
	// StatusFailed means the agent found problems that a correction cycle
	// should address.
	StatusFailed Status = "failed"
	// StatusError means the agent itself failed to run. Errors are never
	// retried by correction cycles; they indicate infrastructure problems.
	StatusError Status = "error"
)

// AgentSpec describes one quality agent: a stable name, the role it plays in
// review, the prompt template it runs, and the model serving it.
type AgentSpec struct {
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
	Prompt string `yaml:"prompt"`
	Model  string `yaml:"model"`
}

// Finding is one problem an agent identified in the change.
type Finding struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`

	// AutoFixed marks findings the agent corrected itself; they are part of
	// the record but need no further action.
	AutoFixed bool `json:"auto_fixed,omitempty"`
}

// Usage captures the cost of one agent run.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	Duration         time.Duration
}

// Add accumulates another run's usage into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.Duration += other.Duration
}

// Result is the structured outcome of one agent run.
type Result struct {
	Name         string
	Status       Status
	Findings     []Finding
	FixesApplied []string
	Summary      string

	Model    string
	Provider string
	Usage    Usage
}

// PriorResult is a compact view of an earlier agent verdict, handed to
// correction runs so a corrective agent can see what the first pass found.
type PriorResult struct {
	Agent    string    `yaml:"agent"`
	Status   string    `yaml:"status"`
	Findings []Finding `yaml:"findings,omitempty"`
	Summary  string    `yaml:"summary,omitempty"`
}

// ChangeContext is the change an agent evaluates: the branch pair, the PR it
// rides on, and the unified diff of what changed.
type ChangeContext struct {
	Branch      string `yaml:"branch"`
	BaseBranch  string `yaml:"base_branch"`
	PRNumber    int    `yaml:"pr_number,omitempty"`
	Description string `yaml:"description,omitempty"`
	Diff        string `yaml:"diff,omitempty"`

	// Title is the subject line of the head commit.
	Title   string `yaml:"title,omitempty"`
	HeadSHA string `yaml:"head_sha,omitempty"`

	// Workdir is the checked-out working tree agents may inspect. Files
	// lists the paths the change touches.
	Workdir string   `yaml:"workdir,omitempty"`
	Files   []string `yaml:"files,omitempty"`

	// PriorResults is populated for correction cycles only.
	PriorResults []PriorResult `yaml:"prior_results,omitempty"`
}

// Executor runs one agent against one change. Implementations must be safe
// for concurrent use; the pipeline fans agents out in parallel waves.
type Executor interface {
	Execute(ctx context.Context, spec AgentSpec, change ChangeContext) (Result, error)
}

// Provider identifies a model backend.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
)

// ProviderFor maps a model name to its backend by prefix.
func ProviderFor(model string) (Provider, error) {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return ProviderClaude, nil
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1-"), strings.HasPrefix(model, "o3-"):
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unsupported model: %q", model)
	}
}
