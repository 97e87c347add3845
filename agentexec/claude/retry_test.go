/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claude

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "rate limited", err: &anthropic.Error{StatusCode: 429}, want: true},
		{name: "service unavailable", err: &anthropic.Error{StatusCode: 503}, want: true},
		{name: "gateway timeout", err: &anthropic.Error{StatusCode: 504}, want: true},
		{name: "overloaded", err: &anthropic.Error{StatusCode: 529}, want: true},
		{name: "bad request", err: &anthropic.Error{StatusCode: 400}, want: false},
		{name: "unauthorized", err: &anthropic.Error{StatusCode: 401}, want: false},
		{name: "wrapped rate limit", err: fmt.Errorf("streaming: %w", &anthropic.Error{StatusCode: 429}), want: true},
		{name: "plain error", err: errors.New("connection reset"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := isRetryableError(tc.err); got != tc.want {
				t.Errorf("isRetryableError() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultRetryConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultRetryConfig().Validate() = %v", err)
	}
	// Overload recovery needs room to back off past a minute.
	if cfg.MaxBackoff < time.Minute {
		t.Errorf("MaxBackoff = %v, want at least a minute", cfg.MaxBackoff)
	}
}
