/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openai runs quality agents on the OpenAI API.
package openai

import (
	"context"
	"fmt"

	"chainguard.dev/conductor/agentexec"
	"chainguard.dev/conductor/agentexec/retry"
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
)

// Executor runs agents against OpenAI models. Safe for concurrent use.
type Executor struct {
	client      openai.Client
	maxTokens   int64
	temperature float64
	retryConfig retry.Config
	metrics     *agentexec.GenAI
}

// New creates an OpenAI-backed agent executor.
func New(client openai.Client, opts ...Option) (*Executor, error) {
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

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(spec.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(e.maxTokens),
		Temperature:         openai.Float(e.temperature),
	}

	log.With("prompt_length", len(user)).Info("Starting OpenAI agent execution")

	completion, err := retry.WithBackoff(ctx, e.retryConfig, "chat_completion", isRetryableError, func() (*openai.ChatCompletion, error) {
		return e.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return agentexec.Result{}, fmt.Errorf("failed to complete OpenAI request: %w", err)
	}

	if completion.Usage.PromptTokens > 0 || completion.Usage.CompletionTokens > 0 {
		e.metrics.RecordTokens(ctx, spec.Model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	}

	if len(completion.Choices) == 0 {
		return agentexec.Result{}, fmt.Errorf("no choices in OpenAI response for agent %q", spec.Name)
	}
	textContent := completion.Choices[0].Message.Content
	if textContent == "" {
		return agentexec.Result{}, fmt.Errorf("no text content in OpenAI response for agent %q", spec.Name)
	}

	result, err := agentexec.ParseResult(spec.Name, textContent)
	if err != nil {
		log.With("response", textContent).With("error", err).Error("Failed to parse OpenAI response")
		return agentexec.Result{}, err
	}
	result.Model = spec.Model
	result.Provider = string(agentexec.ProviderOpenAI)
	result.Usage = agentexec.Usage{
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}

	e.metrics.RecordRun(ctx, spec.Name, spec.Model, result.Status)
	log.With("status", string(result.Status)).Info("Completed OpenAI agent execution")
	return result, nil
}
