/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reaction

import (
	"testing"
	"time"

	"chainguard.dev/conductor/session"
)

func TestFactIdentity(t *testing.T) {
	t.Parallel()

	withDelivery := Fact{Kind: session.InputCIFailed, Branch: "integration/issue-1", DeliveryID: "d-123"}
	if got := withDelivery.Identity(); got != "d-123" {
		t.Errorf("Identity() = %q, want the provider delivery ID", got)
	}

	a := Fact{Kind: session.InputCIFailed, Branch: "integration/issue-1", PRNumber: 7}
	b := Fact{Kind: session.InputCIFailed, Branch: "integration/issue-1", PRNumber: 7}
	if a.Identity() != b.Identity() {
		t.Error("identical facts must share an identity")
	}

	c := Fact{Kind: session.InputCIPassed, Branch: "integration/issue-1", PRNumber: 7}
	if a.Identity() == c.Identity() {
		t.Error("facts of different kinds must not share an identity")
	}
}

func TestSeenCacheTTL(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	c := newSeenCache(time.Minute)
	c.now = func() time.Time { return now }

	if c.Observe("d-1") {
		t.Error("first observation reported as seen")
	}
	if !c.Observe("d-1") {
		t.Error("second observation within TTL not reported as seen")
	}

	// Past the TTL the identity is forgotten and observable again.
	now = now.Add(2 * time.Minute)
	if c.Observe("d-1") {
		t.Error("observation after TTL expiry reported as seen")
	}
}
