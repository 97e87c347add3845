/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mergescheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v84/github"
)

// GitHubMerger executes merges through the GitHub API. Requests carrying a PR
// number are merged as pull requests (respecting branch protection); bare
// branch-to-branch requests use the repository merge endpoint.
type GitHubMerger struct {
	client *github.Client
	owner  string
	repo   string

	// method is the PR merge method: "merge", "squash", or "rebase".
	method string
}

// NewGitHubMerger constructs a Merger backed by the GitHub API.
func NewGitHubMerger(client *github.Client, owner, repo, method string) (*GitHubMerger, error) {
	switch {
	case client == nil:
		return nil, errors.New("github client cannot be nil")
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case repo == "":
		return nil, errors.New("repo cannot be empty")
	}
	switch method {
	case "":
		method = "squash"
	case "merge", "squash", "rebase":
	default:
		return nil, fmt.Errorf("unknown merge method %q", method)
	}
	return &GitHubMerger{client: client, owner: owner, repo: repo, method: method}, nil
}

// Merge performs one merge attempt. Conflicting concurrent changes surface as
// ErrConflict so the scheduler can requeue.
func (m *GitHubMerger) Merge(ctx context.Context, req Request) error {
	if req.PRNumber > 0 {
		return m.mergePR(ctx, req)
	}
	return m.mergeBranch(ctx, req)
}

func (m *GitHubMerger) mergePR(ctx context.Context, req Request) error {
	msg := fmt.Sprintf("Merge %s into %s", req.Source, req.Target)
	result, resp, err := m.client.PullRequests.Merge(ctx, m.owner, m.repo, req.PRNumber, msg, &github.PullRequestOptions{
		MergeMethod: m.method,
	})
	if err != nil {
		if conflictStatus(resp) {
			return fmt.Errorf("merging PR #%d: %w", req.PRNumber, ErrConflict)
		}
		return fmt.Errorf("merging PR #%d: %w", req.PRNumber, err)
	}
	if result != nil && !result.GetMerged() {
		return fmt.Errorf("merging PR #%d: %s: %w", req.PRNumber, result.GetMessage(), ErrConflict)
	}
	return nil
}

func (m *GitHubMerger) mergeBranch(ctx context.Context, req Request) error {
	_, resp, err := m.client.Repositories.Merge(ctx, m.owner, m.repo, &github.RepositoryMergeRequest{
		Base:          github.Ptr(req.Target),
		Head:          github.Ptr(req.Source),
		CommitMessage: github.Ptr(fmt.Sprintf("Merge %s into %s", req.Source, req.Target)),
	})
	if err != nil {
		if conflictStatus(resp) {
			return fmt.Errorf("merging %s into %s: %w", req.Source, req.Target, ErrConflict)
		}
		return fmt.Errorf("merging %s into %s: %w", req.Source, req.Target, err)
	}
	return nil
}

// conflictStatus reports whether the response indicates a merge conflict.
// GitHub answers 409 for conflicting repository merges and 405 for pull
// requests that are not mergeable.
func conflictStatus(resp *github.Response) bool {
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusMethodNotAllowed
}
