/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claude

import (
	"errors"

	"chainguard.dev/conductor/agentexec/retry"
)

// Option configures an Executor.
type Option func(*Executor) error

// WithMaxTokens sets the response token ceiling.
func WithMaxTokens(maxTokens int64) Option {
	return func(e *Executor) error {
		if maxTokens <= 0 {
			return errors.New("max tokens must be positive")
		}
		e.maxTokens = maxTokens
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) Option {
	return func(e *Executor) error {
		if temperature < 0 || temperature > 1 {
			return errors.New("temperature must be between 0 and 1")
		}
		e.temperature = temperature
		return nil
	}
}

// WithRetryConfig overrides the transient-error retry behavior.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Executor) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.retryConfig = cfg
		return nil
	}
}
