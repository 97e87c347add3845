/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package webhook is the authenticated boundary between the provider and the
// orchestration core. Signatures are verified against the raw body, payloads
// are normalized into facts, and every valid request gets an explicit
// processed or ignored outcome; silence never signals "nothing to do".
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"chainguard.dev/conductor/reaction"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// maxBodySize caps webhook payload reads. GitHub's documented maximum is
// around 25 MB for large push events.
const maxBodySize = 32 * 1024 * 1024

// FactHandler consumes normalized facts. Satisfied by reaction.Engine.
type FactHandler interface {
	HandleFact(ctx context.Context, f reaction.Fact) (reaction.Outcome, error)
}

// SessionOpener accepts new units of work from issue assignment. Satisfied
// by reaction.Engine.
type SessionOpener interface {
	OpenSession(ctx context.Context, issueNumber int, title, body string) (reaction.Outcome, error)
}

// Ingress is the HTTP handler for provider webhooks.
type Ingress struct {
	secret  []byte
	handler FactHandler
	opener  SessionOpener
}

// IngressOption configures an Ingress.
type IngressOption func(*Ingress)

// WithSessionOpener enables session intake from issue assignment events.
func WithSessionOpener(o SessionOpener) IngressOption {
	return func(i *Ingress) { i.opener = o }
}

// NewIngress constructs the webhook handler. The secret is the shared HMAC
// key configured on the provider side; a nil secret disables signature
// verification entirely, which is only sensible behind a trusted proxy.
func NewIngress(secret []byte, handler FactHandler, opts ...IngressOption) (*Ingress, error) {
	if handler == nil {
		return nil, errors.New("fact handler cannot be nil")
	}
	i := &Ingress{secret: secret, handler: handler}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// ServeHTTP handles one webhook delivery. Authentication failures answer 401
// with a body distinguishing a missing header from a bad signature; 400 is
// reserved for unparseable JSON. Every authenticated, parseable request is
// answered 200 with its outcome.
func (i *Ingress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := clog.FromContext(ctx)

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.With("error", err).Error("Failed to read webhook body")
		writeError(w, http.StatusInternalServerError, "Failed to read body")
		return
	}

	if len(i.secret) == 0 {
		log.Warn("Signature verification disabled: no webhook secret configured")
	} else {
		signature := r.Header.Get(github.SHA256SignatureHeader)
		if signature == "" {
			log.With("remote_addr", r.RemoteAddr).Warn("Webhook missing signature header")
			writeError(w, http.StatusUnauthorized, "Missing signature header")
			return
		}
		if err := github.ValidateSignature(signature, body, i.secret); err != nil {
			log.With("remote_addr", r.RemoteAddr).Warn("Webhook signature validation failed")
			writeError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	eventType := github.WebHookType(r)
	deliveryID := github.DeliveryID(r)
	log = log.With("event", eventType).With("delivery", deliveryID)

	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		// The JSON was valid, so this is an event type we do not know.
		log.Info("Ignoring webhook: unsupported event type")
		writeOutcome(w, reaction.Outcome{Status: reaction.StatusIgnored, Reason: "unsupported event type"})
		return
	}

	if issues, ok := payload.(*github.IssuesEvent); ok {
		i.handleIssue(ctx, w, issues)
		return
	}

	fact, ok, reason := Normalize(payload, deliveryID)
	if !ok {
		log.With("reason", reason).Info("Ignoring webhook")
		writeOutcome(w, reaction.Outcome{Status: reaction.StatusIgnored, Reason: reason})
		return
	}

	outcome, err := i.handler.HandleFact(ctx, fact)
	if err != nil {
		log.With("error", err).Error("Fact handling failed")
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeOutcome(w, outcome)
}

// handleIssue routes issue assignment into session intake.
func (i *Ingress) handleIssue(ctx context.Context, w http.ResponseWriter, e *github.IssuesEvent) {
	log := clog.FromContext(ctx).With("issue", e.GetIssue().GetNumber())

	if i.opener == nil {
		log.Info("Ignoring issue event: session intake not configured")
		writeOutcome(w, reaction.Outcome{Status: reaction.StatusIgnored, Reason: "session intake not configured"})
		return
	}
	if e.GetAction() != "assigned" {
		writeOutcome(w, reaction.Outcome{Status: reaction.StatusIgnored, Reason: "issue action is not an assignment"})
		return
	}

	outcome, err := i.opener.OpenSession(ctx, e.GetIssue().GetNumber(), e.GetIssue().GetTitle(), e.GetIssue().GetBody())
	if err != nil {
		log.With("error", err).Error("Session intake failed")
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeOutcome(w, outcome)
}

func writeOutcome(w http.ResponseWriter, o reaction.Outcome) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(o)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
