/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workflow submits long-running flows to the durable task runner.
// The orchestration core only submits work by name; completion re-enters the
// system as a webhook fact (workflow_run), never as a blocking wait.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// Input is the structured payload handed to a dispatched workflow.
type Input struct {
	Branch            string
	IntegrationBranch string
	PRNumber          int
	BaseBranch        string
	ProjectPath       string
	Prompt            string
}

// Dispatcher submits a named workflow with a structured input payload.
// Dispatch is fire-and-forget: the runner's completion is observed through
// the webhook boundary.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, in Input) error
}

// actionsDispatcher drives GitHub Actions workflow_dispatch by file name.
type actionsDispatcher struct {
	client *github.Client
	owner  string
	repo   string
	ref    string // the ref the workflow definition is read from
}

// NewActionsDispatcher constructs a Dispatcher backed by GitHub Actions.
func NewActionsDispatcher(client *github.Client, owner, repo, ref string) (Dispatcher, error) {
	switch {
	case client == nil:
		return nil, errors.New("github client cannot be nil")
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case repo == "":
		return nil, errors.New("repo cannot be empty")
	case ref == "":
		return nil, errors.New("ref cannot be empty")
	}
	return &actionsDispatcher{client: client, owner: owner, repo: repo, ref: ref}, nil
}

func (d *actionsDispatcher) Dispatch(ctx context.Context, name string, in Input) error {
	log := clog.FromContext(ctx)

	inputs := map[string]any{
		"branch":             in.Branch,
		"integration_branch": in.IntegrationBranch,
		"base_branch":        in.BaseBranch,
		"project_path":       in.ProjectPath,
	}
	if in.PRNumber > 0 {
		inputs["pr_number"] = fmt.Sprint(in.PRNumber)
	}
	if in.Prompt != "" {
		inputs["prompt"] = in.Prompt
	}

	log.With("workflow", name).With("branch", in.Branch).Info("Dispatching workflow")

	_, _, err := d.client.Actions.CreateWorkflowDispatchEventByFileName(ctx, d.owner, d.repo, name, github.CreateWorkflowDispatchEventRequest{
		Ref:    d.ref,
		Inputs: inputs,
	})
	if err != nil {
		return fmt.Errorf("dispatching workflow %q: %w", name, err)
	}
	return nil
}

// disabled is the null-object Dispatcher used when no task runner is
// configured: submissions are logged and dropped.
type disabled struct{}

// Disabled returns a Dispatcher that logs and drops every submission.
func Disabled() Dispatcher {
	return disabled{}
}

func (disabled) Dispatch(ctx context.Context, name string, in Input) error {
	clog.FromContext(ctx).
		With("workflow", name).
		With("branch", in.Branch).
		Info("Workflow dispatch disabled, dropping submission")
	return nil
}
