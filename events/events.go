/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package events

import "time"

// Kind discriminates the events flowing through the bus. Facts entering from
// the webhook boundary and internal orchestration milestones share one
// vocabulary so observers can subscribe uniformly.
type Kind string

const (
	// Facts normalized from provider webhooks.
	KindReviewChangesRequested Kind = "review.changes_requested"
	KindReviewApproved         Kind = "review.approved"
	KindPRMerged               Kind = "pr.merged"
	KindCIFailed               Kind = "ci.failed"
	KindCIPassed               Kind = "ci.passed"
	KindSessionInactive        Kind = "session.inactive"

	// Internal orchestration milestones.
	KindWaveStarted         Kind = "wave.started"
	KindWaveFinished        Kind = "wave.finished"
	KindCycleStarted        Kind = "cycle.started"
	KindSessionTransitioned Kind = "session.transitioned"
	KindActionEmitted       Kind = "action.emitted"
	KindMergeQueued         Kind = "merge.queued"
	KindMergeCompleted      Kind = "merge.completed"
	KindMergeConflict       Kind = "merge.conflict"
)

// Event is a single occurrence published on the bus. Body holds the
// kind-specific payload; subscribers switch on Kind to recover it.
type Event struct {
	Kind Kind
	Time time.Time
	Body any
}

// WavePayload accompanies wave.started, wave.finished and cycle.started.
type WavePayload struct {
	RequestID string
	Attempt   int
	Agents    []string
}

// TransitionPayload accompanies session.transitioned.
type TransitionPayload struct {
	SessionID string
	From      string
	To        string
	FactKind  string
}

// ActionPayload accompanies action.emitted.
type ActionPayload struct {
	SessionID string
	Action    string
	Reason    string
}

// MergePayload accompanies the merge.* events.
type MergePayload struct {
	Source   string
	Target   string
	PRNumber int
	Reason   string
}
