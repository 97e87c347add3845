/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claude

import (
	"errors"
	"time"

	"chainguard.dev/conductor/agentexec/retry"
	"github.com/anthropics/anthropic-sdk-go"
)

// defaultRetryConfig is sized for Anthropic's 529 overload responses, which
// clear on the order of minutes rather than seconds.
func defaultRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:  6,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  2 * time.Minute,
		MaxJitter:   time.Second,
	}
}

// isRetryableError checks if an error is a retryable Anthropic API error.
// Returns true for rate limit, overloaded, and transient server errors.
func isRetryableError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 503, 504, 529:
			return true
		}
	}
	return false
}
