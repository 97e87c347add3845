/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentexec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls JSON content out of a model response that may wrap it in
// markdown code fences. It prefers the first ```json block on its own lines,
// then falls back to stripping surrounding fences from the whole response.
func ExtractJSON(responseText string) string {
	lines := strings.Split(responseText, "\n")
	var buf bytes.Buffer
	inBlock := false
	found := false

	for _, line := range lines {
		if !inBlock && line == "```json" {
			inBlock = true
			found = true
			continue
		}
		if inBlock && line == "```" {
			break
		}
		if inBlock {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(line)
		}
	}

	if found {
		return strings.TrimSpace(buf.String())
	}

	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	return strings.TrimSpace(responseText)
}

// ParseResult parses an agent's response text into a Result. An unparseable
// response or an unknown status is an error; callers surface it as an
// error-status result that correction cycles will not retry.
func ParseResult(name, responseText string) (Result, error) {
	var v verdict
	if err := json.Unmarshal([]byte(ExtractJSON(responseText)), &v); err != nil {
		return Result{}, fmt.Errorf("parsing agent response: %w", err)
	}

	var status Status
	switch v.Status {
	case string(StatusPassed):
		status = StatusPassed
	case string(StatusFailed):
		status = StatusFailed
	default:
		return Result{}, fmt.Errorf("agent reported unknown status %q", v.Status)
	}

	return Result{
		Name:         name,
		Status:       status,
		Findings:     v.Findings,
		FixesApplied: v.FixesApplied,
		Summary:      v.Summary,
	}, nil
}

// ErrorResult wraps an execution failure as a Result with StatusError so the
// pipeline can report it alongside normal verdicts.
func ErrorResult(name string, err error) Result {
	return Result{
		Name:    name,
		Status:  StatusError,
		Summary: err.Error(),
	}
}
