/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-github/v84/github"
)

// GitHubNotifier posts comments and labels through the GitHub issues API.
type GitHubNotifier struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubNotifier constructs a Notifier for one repository.
func NewGitHubNotifier(client *github.Client, owner, repo string) (*GitHubNotifier, error) {
	switch {
	case client == nil:
		return nil, errors.New("github client cannot be nil")
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case repo == "":
		return nil, errors.New("repo cannot be empty")
	}
	return &GitHubNotifier{client: client, owner: owner, repo: repo}, nil
}

// Comment posts a comment on the pull request's conversation thread.
func (n *GitHubNotifier) Comment(ctx context.Context, prNumber int, body string) error {
	_, _, err := n.client.Issues.CreateComment(ctx, n.owner, n.repo, prNumber, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("creating comment on #%d: %w", prNumber, err)
	}
	return nil
}

// Label adds a label to the pull request, creating no duplicates server-side.
func (n *GitHubNotifier) Label(ctx context.Context, prNumber int, label string) error {
	_, _, err := n.client.Issues.AddLabelsToIssue(ctx, n.owner, n.repo, prNumber, []string{label})
	if err != nil {
		return fmt.Errorf("adding label %q to #%d: %w", label, prNumber, err)
	}
	return nil
}
