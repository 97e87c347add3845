/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import "fmt"

// State is a session's lifecycle stage.
type State string

const (
	StateCreated          State = "created"
	StatePlanning         State = "planning"
	StateImplementing     State = "implementing"
	StatePRCreated        State = "pr_created"
	StateCIRunning        State = "ci_running"
	StateCIPassed         State = "ci_passed"
	StateCIFailed         State = "ci_failed"
	StateReviewPending    State = "review_pending"
	StateChangesRequested State = "changes_requested"
	StateApproved         State = "approved"
	StateMerged           State = "merged"
	StateEscalated        State = "escalated"
)

// Terminal reports whether no further automatic transitions apply.
func (s State) Terminal() bool {
	return s == StateMerged || s == StateEscalated
}

// Input is an observation applied to the state machine. The webhook boundary
// normalizes provider payloads into these; the inactivity monitor produces
// InputInactive.
type Input string

const (
	InputPROpened         Input = "pr.opened"
	InputCIStarted        Input = "ci.started"
	InputCIFailed         Input = "ci.failed"
	InputCIPassed         Input = "ci.passed"
	InputChangesRequested Input = "review.changes_requested"
	InputApproved         Input = "review.approved"
	InputMerged           Input = "pr.merged"
	InputInactive         Input = "session.inactive"
)

// ActionType enumerates the side effects a transition can request.
type ActionType string

const (
	ActionRespawnAgent ActionType = "respawn_agent"
	ActionNotify       ActionType = "notify"
	ActionEscalate     ActionType = "escalate"
	ActionAutoMerge    ActionType = "auto_merge"
)

// Action is a side effect requested by a transition. The state machine only
// describes actions; executing them is the reaction engine's job.
type Action struct {
	Type    ActionType
	Prompt  string // for respawn_agent
	Reason  string // for escalate
	Message string // for notify
}

// Limits carries the static policy the state machine consults for its guards.
type Limits struct {
	MaxCIRetries     int
	MaxReviewRetries int
	AutoMerge        bool
}

// Snapshot is the mutable portion of a session the state machine operates on.
// Transition is a pure function over snapshots, which keeps the machine
// testable without a store or any concurrency.
type Snapshot struct {
	State         State
	CIRetries     int
	ReviewRetries int
	Escalated     bool

	// CIGreen and Approved track the latest observed CI and review outcomes
	// independently of State, so that approval observed while CI is still
	// running can be acted on once ci.passed arrives (and vice versa).
	CIGreen  bool
	Approved bool
}

// Transition applies one input to a snapshot and returns the successor
// snapshot plus the actions the reaction engine must execute. Every guard
// failure produces exactly one escalate action; automation never gives up
// silently.
func Transition(snap Snapshot, in Input, lim Limits) (Snapshot, []Action) {
	// Terminal states accept no automatic transitions. Only explicit human
	// action (modeled as an external event) moves a session out of escalated.
	if snap.State.Terminal() || snap.Escalated {
		return snap, nil
	}

	switch in {
	case InputPROpened:
		// Only an early-stage session advances; redeliveries after CI has
		// started must not rewind the machine.
		switch snap.State {
		case StateCreated, StatePlanning, StateImplementing:
			snap.State = StatePRCreated
		}
		return snap, nil

	case InputCIStarted:
		snap.CIGreen = false
		snap.State = StateCIRunning
		return snap, nil

	case InputCIFailed:
		snap.CIGreen = false
		if snap.CIRetries >= lim.MaxCIRetries {
			return escalate(snap, fmt.Sprintf("CI retry budget exhausted (%d/%d)", snap.CIRetries, lim.MaxCIRetries))
		}
		snap.CIRetries++
		snap.State = StateImplementing
		return snap, []Action{{
			Type:   ActionRespawnAgent,
			Prompt: "ci_failure",
		}}

	case InputCIPassed:
		snap.CIGreen = true
		if snap.Approved {
			return approvedAndGreen(snap, lim)
		}
		snap.State = StateReviewPending
		return snap, nil

	case InputChangesRequested:
		snap.Approved = false
		if snap.ReviewRetries >= lim.MaxReviewRetries {
			return escalate(snap, fmt.Sprintf("review retry budget exhausted (%d/%d)", snap.ReviewRetries, lim.MaxReviewRetries))
		}
		snap.ReviewRetries++
		snap.State = StateImplementing
		return snap, []Action{{
			Type:   ActionRespawnAgent,
			Prompt: "review_feedback",
		}}

	case InputApproved:
		snap.Approved = true
		if snap.CIGreen {
			return approvedAndGreen(snap, lim)
		}
		// CI still pending; record the approval and wait for ci.passed.
		return snap, nil

	case InputMerged:
		snap.State = StateMerged
		return snap, nil

	case InputInactive:
		return escalate(snap, "session inactive beyond escalation timeout")

	default:
		// Unknown inputs are a programming error at the normalization layer;
		// leave the session untouched rather than corrupt it.
		return snap, nil
	}
}

func approvedAndGreen(snap Snapshot, lim Limits) (Snapshot, []Action) {
	snap.State = StateApproved
	if lim.AutoMerge {
		return snap, []Action{{Type: ActionAutoMerge}}
	}
	return snap, []Action{{
		Type:    ActionNotify,
		Message: "approved with green CI; auto-merge disabled, ready for manual merge",
	}}
}

func escalate(snap Snapshot, reason string) (Snapshot, []Action) {
	snap.State = StateEscalated
	snap.Escalated = true
	return snap, []Action{{Type: ActionEscalate, Reason: reason}}
}
