/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reaction

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"chainguard.dev/conductor/session"
)

// Fact is a normalized observation entering the system from outside: a CI
// conclusion, a review decision, a merge, or an inactivity timeout. Facts are
// idempotent triggers; processing the same fact twice must not double-apply
// a retry.
type Fact struct {
	Kind     session.Input
	Branch   string
	PRNumber int
	Actor    string // reviewer login, when applicable

	// DeliveryID is the provider's delivery identifier (GitHub's
	// X-GitHub-Delivery header). Providers retry webhooks with the same
	// delivery ID, which makes it the natural idempotency key.
	DeliveryID string

	Time time.Time
}

// Identity derives the idempotency key for this fact. The provider delivery
// ID is used when present; otherwise a digest of the normalized fields.
func (f Fact) Identity() string {
	if f.DeliveryID != "" {
		return f.DeliveryID
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%s", f.Kind, f.Branch, f.PRNumber, f.Actor))
	return fmt.Sprintf("%x", sum[:16])
}

// seenCache remembers fact identities for a TTL window so that at-least-once
// webhook redelivery is absorbed without double-applying transitions.
type seenCache struct {
	mu  sync.Mutex
	ttl time.Duration
	ids map[string]time.Time
	now func() time.Time
}

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{
		ttl: ttl,
		ids: make(map[string]time.Time),
		now: time.Now,
	}
}

// Observe records the identity and reports whether it was already present
// within the TTL window.
func (c *seenCache) Observe(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-c.ttl)
	for k, t := range c.ids {
		if t.Before(cutoff) {
			delete(c.ids, k)
		}
	}

	if t, ok := c.ids[id]; ok && !t.Before(cutoff) {
		return true
	}
	c.ids[id] = now
	return false
}
