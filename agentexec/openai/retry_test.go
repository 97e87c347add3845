/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package openai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/openai/openai-go"
)

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "rate limited", err: &openai.Error{StatusCode: 429}, want: true},
		{name: "server error", err: &openai.Error{StatusCode: 500}, want: true},
		{name: "bad gateway", err: &openai.Error{StatusCode: 502}, want: true},
		{name: "service unavailable", err: &openai.Error{StatusCode: 503}, want: true},
		{name: "gateway timeout", err: &openai.Error{StatusCode: 504}, want: true},
		{name: "bad request", err: &openai.Error{StatusCode: 400}, want: false},
		{name: "wrapped rate limit", err: fmt.Errorf("chat completion: %w", &openai.Error{StatusCode: 429}), want: true},
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

	if err := defaultRetryConfig().Validate(); err != nil {
		t.Errorf("defaultRetryConfig().Validate() = %v", err)
	}
}
