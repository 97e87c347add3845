/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claude runs quality agents on the Anthropic API.
package claude

import (
	"context"
	"fmt"

	"chainguard.dev/conductor/agentexec"
	"chainguard.dev/conductor/agentexec/retry"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
)

// Executor runs agents against Claude models. Safe for concurrent use.
type Executor struct {
	client      anthropic.Client
	maxTokens   int64
	temperature float64
	retryConfig retry.Config
	metrics     *agentexec.GenAI
}

// New creates a Claude-backed agent executor.
func New(client anthropic.Client, opts ...Option) (*Executor, error) {
	e := &Executor{
		client:      client,
		maxTokens:   8192,
		temperature: 0.1,
		retryConfig: defaultRetryConfig(),
		metrics:     agentexec.NewGenAI("chainguard.conductor.agents"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// Execute runs one agent against one change and parses its structured
// verdict.
func (e *Executor) Execute(ctx context.Context, spec agentexec.AgentSpec, change agentexec.ChangeContext) (agentexec.Result, error) {
	log := clog.FromContext(ctx).With("agent", spec.Name).With("model", spec.Model)

	system, err := agentexec.SystemPrompt(spec)
	if err != nil {
		return agentexec.Result{}, fmt.Errorf("building system prompt: %w", err)
	}
	user, err := agentexec.UserPrompt(spec, change)
	if err != nil {
		return agentexec.Result{}, fmt.Errorf("building user prompt: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(spec.Model),
		MaxTokens: e.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(user),
			},
		}},
	}
	params.Temperature = anthropic.Float(e.temperature)

	log.With("prompt_length", len(user)).Info("Starting Claude agent execution")

	message, err := retry.WithBackoff(ctx, e.retryConfig, "stream_message", isRetryableError, func() (anthropic.Message, error) {
		stream := e.client.Messages.NewStreaming(ctx, params)
		var msg anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				return msg, fmt.Errorf("failed to accumulate event: %w", err)
			}
		}
		if err := stream.Err(); err != nil {
			return msg, err
		}
		return msg, nil
	})
	if err != nil {
		return agentexec.Result{}, fmt.Errorf("failed to stream Claude response: %w", err)
	}

	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		e.metrics.RecordTokens(ctx, spec.Model, message.Usage.InputTokens, message.Usage.OutputTokens)
	}

	var textContent string
	for _, content := range message.Content {
		if content.Type == "text" {
			textContent = content.Text
		}
	}
	if textContent == "" {
		return agentexec.Result{}, fmt.Errorf("no text content in Claude response for agent %q", spec.Name)
	}

	result, err := agentexec.ParseResult(spec.Name, textContent)
	if err != nil {
		log.With("response", textContent).With("error", err).Error("Failed to parse Claude response")
		return agentexec.Result{}, err
	}
	result.Model = spec.Model
	result.Provider = string(agentexec.ProviderClaude)
	result.Usage = agentexec.Usage{
		PromptTokens:     message.Usage.InputTokens,
		CompletionTokens: message.Usage.OutputTokens,
	}

	e.metrics.RecordRun(ctx, spec.Name, spec.Model, result.Status)
	log.With("status", string(result.Status)).Info("Completed Claude agent execution")
	return result, nil
}
