/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"time"

	"chainguard.dev/conductor/reaction"
	"chainguard.dev/conductor/session"
	"github.com/google/go-github/v84/github"
)

// Normalize maps a parsed provider payload to at most one fact. The second
// return reports whether a fact was produced; when false, the third return
// carries the ignore reason.
func Normalize(payload any, deliveryID string) (reaction.Fact, bool, string) {
	switch e := payload.(type) {
	case *github.PullRequestReviewEvent:
		return normalizeReview(e, deliveryID)

	case *github.PullRequestEvent:
		var kind session.Input
		switch {
		case e.GetAction() == "opened", e.GetAction() == "ready_for_review":
			kind = session.InputPROpened
		case e.GetAction() == "closed" && e.GetPullRequest().GetMerged():
			kind = session.InputMerged
		default:
			return reaction.Fact{}, false, "pull request action is not an opening or a merge"
		}
		return reaction.Fact{
			Kind:       kind,
			Branch:     e.GetPullRequest().GetHead().GetRef(),
			PRNumber:   e.GetPullRequest().GetNumber(),
			DeliveryID: deliveryID,
			Time:       time.Now(),
		}, true, ""

	case *github.CheckSuiteEvent:
		switch e.GetAction() {
		case "requested", "rerequested":
			return reaction.Fact{
				Kind:       session.InputCIStarted,
				Branch:     e.GetCheckSuite().GetHeadBranch(),
				DeliveryID: deliveryID,
				Time:       time.Now(),
			}, true, ""
		case "completed":
			return normalizeCI(e.GetCheckSuite().GetHeadBranch(), e.GetCheckSuite().GetConclusion(), 0, deliveryID)
		default:
			return reaction.Fact{}, false, "check suite action is not tracked"
		}

	case *github.WorkflowRunEvent:
		switch e.GetAction() {
		case "requested", "in_progress":
			return reaction.Fact{
				Kind:       session.InputCIStarted,
				Branch:     e.GetWorkflowRun().GetHeadBranch(),
				DeliveryID: deliveryID,
				Time:       time.Now(),
			}, true, ""
		case "completed":
			return normalizeCI(e.GetWorkflowRun().GetHeadBranch(), e.GetWorkflowRun().GetConclusion(), 0, deliveryID)
		default:
			return reaction.Fact{}, false, "workflow run action is not tracked"
		}

	case *github.StatusEvent:
		if len(e.Branches) == 0 {
			return reaction.Fact{}, false, "status event has no branches"
		}
		return normalizeCI(e.Branches[0].GetName(), statusConclusion(e.GetState()), 0, deliveryID)

	case *github.PingEvent:
		return reaction.Fact{}, false, "ping"

	default:
		return reaction.Fact{}, false, "unsupported event type"
	}
}

func normalizeReview(e *github.PullRequestReviewEvent, deliveryID string) (reaction.Fact, bool, string) {
	if e.GetAction() != "submitted" {
		return reaction.Fact{}, false, "review action is not a submission"
	}

	var kind session.Input
	switch e.GetReview().GetState() {
	case "approved":
		kind = session.InputApproved
	case "changes_requested":
		kind = session.InputChangesRequested
	default:
		return reaction.Fact{}, false, "review state is not a decision"
	}

	return reaction.Fact{
		Kind:       kind,
		Branch:     e.GetPullRequest().GetHead().GetRef(),
		PRNumber:   e.GetPullRequest().GetNumber(),
		Actor:      e.GetReview().GetUser().GetLogin(),
		DeliveryID: deliveryID,
		Time:       time.Now(),
	}, true, ""
}

func normalizeCI(branch, conclusion string, prNumber int, deliveryID string) (reaction.Fact, bool, string) {
	var kind session.Input
	switch conclusion {
	case "success":
		kind = session.InputCIPassed
	case "failure", "timed_out", "startup_failure":
		kind = session.InputCIFailed
	default:
		// neutral, cancelled, skipped, action_required: not a CI verdict.
		return reaction.Fact{}, false, "conclusion is not a CI verdict"
	}

	return reaction.Fact{
		Kind:       kind,
		Branch:     branch,
		PRNumber:   prNumber,
		DeliveryID: deliveryID,
		Time:       time.Now(),
	}, true, ""
}

// statusConclusion maps legacy commit-status states onto check conclusions.
func statusConclusion(state string) string {
	switch state {
	case "success":
		return "success"
	case "failure", "error":
		return "failure"
	default:
		return state
	}
}
