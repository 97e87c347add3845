/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"chainguard.dev/conductor/agentexec"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// createStandardTable creates a table writer with the markdown formatting
// used in pipeline summaries posted to pull requests.
func createStandardTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 80,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// Render writes the report as a markdown summary: one row per agent plus the
// correction cycle log.
func (r *Report) Render(w io.Writer) error {
	verdict := "FAILED"
	if r.Passed {
		verdict = "PASSED"
	}
	if _, err := fmt.Fprintf(w, "## Quality pipeline: %s\n\n", verdict); err != nil {
		return err
	}

	table := createStandardTable([]string{"Agent", "Status", "Findings", "Summary"}, w)
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res := r.Results[name]
		if err := table.Append([]string{
			name,
			string(res.Status),
			fmt.Sprintf("%d", len(res.Findings)),
			res.Summary,
		}); err != nil {
			return fmt.Errorf("appending report row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering report table: %w", err)
	}

	if len(r.Cycles) > 0 {
		if _, err := fmt.Fprintf(w, "\nCorrection cycles:\n"); err != nil {
			return err
		}
		for _, c := range r.Cycles {
			if _, err := fmt.Fprintf(w, "- cycle %d: %s\n", c.Attempt, strings.Join(c.Agents, ", ")); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(w, "\nCompleted in %s using %d prompt and %d completion tokens.\n",
		r.Duration.Round(time.Second), r.Usage.PromptTokens, r.Usage.CompletionTokens)
	return err
}

// FailedFindings flattens the findings of failed agents for downstream
// consumers that only care about what blocks the change.
func (r *Report) FailedFindings() []agentexec.Finding {
	var out []agentexec.Finding
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if res := r.Results[name]; res.Status == agentexec.StatusFailed {
			out = append(out, res.Findings...)
		}
	}
	return out
}
