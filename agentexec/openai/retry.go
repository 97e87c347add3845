/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package openai

import (
	"errors"
	"time"

	"chainguard.dev/conductor/agentexec/retry"
	"github.com/openai/openai-go"
)

// defaultRetryConfig is sized for OpenAI's per-minute rate limit windows.
func defaultRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:  4,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
		MaxJitter:   500 * time.Millisecond,
	}
}

// isRetryableError checks if an error is a retryable OpenAI API error.
// Returns true for rate limit and transient server errors.
func isRetryableError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}
