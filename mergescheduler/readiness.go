/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mergescheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/shurcooL/githubv4"
)

// PRReadiness answers whether a pull request is approved with green CI,
// straight from the provider rather than from cached session state.
type PRReadiness struct {
	gql   *githubv4.Client
	owner string
	repo  string
}

// NewPRReadiness constructs a ReadinessChecker backed by the GitHub GraphQL
// API.
func NewPRReadiness(gql *githubv4.Client, owner, repo string) (*PRReadiness, error) {
	switch {
	case gql == nil:
		return nil, errors.New("graphql client cannot be nil")
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case repo == "":
		return nil, errors.New("repo cannot be empty")
	}
	return &PRReadiness{gql: gql, owner: owner, repo: repo}, nil
}

// Ready reports whether the pull request's review decision is APPROVED and
// the status rollup of its head commit is SUCCESS.
func (r *PRReadiness) Ready(ctx context.Context, prNumber int) (bool, string, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				ReviewDecision string
				Commits        struct {
					Nodes []struct {
						Commit struct {
							StatusCheckRollup struct {
								State string
							}
						}
					}
				} `graphql:"commits(last: 1)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	vars := map[string]any{
		"owner":  githubv4.String(r.owner),
		"repo":   githubv4.String(r.repo),
		"number": githubv4.Int(prNumber), //nolint:gosec
	}
	if err := r.gql.Query(ctx, &query, vars); err != nil {
		return false, "", fmt.Errorf("querying PR #%d readiness: %w", prNumber, err)
	}

	pr := query.Repository.PullRequest
	if pr.ReviewDecision != "APPROVED" {
		return false, fmt.Sprintf("review decision is %s", orUnset(pr.ReviewDecision)), nil
	}
	if len(pr.Commits.Nodes) == 0 {
		return false, "pull request has no commits", nil
	}
	if state := pr.Commits.Nodes[0].Commit.StatusCheckRollup.State; state != "SUCCESS" {
		return false, fmt.Sprintf("status rollup is %s", orUnset(state)), nil
	}
	return true, "", nil
}

func orUnset(s string) string {
	if s == "" {
		return "unset"
	}
	return s
}
