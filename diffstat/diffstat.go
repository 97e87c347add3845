/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package diffstat summarizes unified diffs into the per-file and aggregate
// counts surfaced in session notifications and pipeline reports.
package diffstat

import (
	"fmt"
	"sort"

	"github.com/waigani/diffparser"
)

// FileStat is the change summary for one file.
type FileStat struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	New       bool   `json:"new,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// Stats is the aggregate change summary for a unified diff.
type Stats struct {
	FilesChanged int        `json:"files_changed"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	Files        []FileStat `json:"files,omitempty"`
}

// Parse summarizes a unified diff. An empty diff yields zero stats.
func Parse(diff string) (*Stats, error) {
	if diff == "" {
		return &Stats{}, nil
	}

	parsed, err := diffparser.Parse(diff)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	stats := &Stats{FilesChanged: len(parsed.Files)}
	for _, file := range parsed.Files {
		fs := FileStat{
			Path:    file.NewName,
			New:     file.Mode == diffparser.NEW,
			Deleted: file.Mode == diffparser.DELETED,
		}
		if fs.Deleted {
			fs.Path = file.OrigName
		}
		for _, hunk := range file.Hunks {
			for _, line := range hunk.WholeRange.Lines {
				switch line.Mode {
				case diffparser.ADDED:
					fs.Additions++
				case diffparser.REMOVED:
					fs.Deletions++
				}
			}
		}
		stats.Additions += fs.Additions
		stats.Deletions += fs.Deletions
		stats.Files = append(stats.Files, fs)
	}

	sort.Slice(stats.Files, func(i, j int) bool { return stats.Files[i].Path < stats.Files[j].Path })
	return stats, nil
}

// String renders the one-line summary used in log lines and notifications.
func (s *Stats) String() string {
	return fmt.Sprintf("%d files changed, %d insertions(+), %d deletions(-)", s.FilesChanged, s.Additions, s.Deletions)
}
