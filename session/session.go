/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package session holds the durable record of one orchestrated unit of work
// and its lifecycle state machine. Mutation of a given session is serialized
// through the store's per-session writer lock; different sessions proceed
// fully in parallel.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a session ID or branch resolves to nothing.
var ErrNotFound = errors.New("session not found")

// Session is the record of one orchestrated unit of work.
type Session struct {
	ID          string
	Branch      string
	BaseBranch  string
	PRNumber    int // 0 until a PR exists
	IssueNumber int

	Snapshot

	CreatedAt      time.Time
	LastActivityAt time.Time
}

type entry struct {
	mu sync.Mutex
	s  *Session
}

// Store is an in-memory session registry. Archived sessions remain readable
// but are no longer eligible for updates or branch lookup.
type Store struct {
	mu       sync.RWMutex
	active   map[string]*entry
	byBranch map[string]string
	archived map[string]*Session
	now      func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		active:   make(map[string]*entry),
		byBranch: make(map[string]string),
		archived: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new session for the given branch. The session starts in
// StateCreated with zeroed retry counters.
func (st *Store) Create(id, branch, baseBranch string) (*Session, error) {
	if id == "" {
		return nil, errors.New("session id cannot be empty")
	}
	if branch == "" {
		return nil, errors.New("branch cannot be empty")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.active[id]; ok {
		return nil, fmt.Errorf("session %q already exists", id)
	}
	if other, ok := st.byBranch[branch]; ok {
		return nil, fmt.Errorf("branch %q already owned by session %q", branch, other)
	}

	now := st.now()
	s := &Session{
		ID:             id,
		Branch:         branch,
		BaseBranch:     baseBranch,
		Snapshot:       Snapshot{State: StateCreated},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	st.active[id] = &entry{s: s}
	st.byBranch[branch] = id
	return copySession(s), nil
}

// Get returns a copy of the session, checking active sessions first and then
// the archive.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if e, ok := st.active[id]; ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return copySession(e.s), nil
	}
	if s, ok := st.archived[id]; ok {
		return copySession(s), nil
	}
	return nil, ErrNotFound
}

// ByBranch resolves the active session owning the given branch.
func (st *Store) ByBranch(branch string) (*Session, error) {
	st.mu.RLock()
	id, ok := st.byBranch[branch]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return st.Get(id)
}

// Update runs fn while holding the session's writer lock. This is the single
// point through which session state is mutated: two facts for the same
// session are applied strictly sequentially, while facts for different
// sessions interleave freely. LastActivityAt is stamped on success.
func (st *Store) Update(id string, fn func(*Session) error) (*Session, error) {
	st.mu.RLock()
	e, ok := st.active[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.s); err != nil {
		return nil, err
	}
	e.s.LastActivityAt = st.now()
	return copySession(e.s), nil
}

// Archive moves a session out of the active set, releasing its branch.
// Archived sessions are retained, not deleted.
func (st *Store) Archive(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.active[id]
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(st.active, id)
	delete(st.byBranch, e.s.Branch)
	st.archived[id] = e.s
	return nil
}

// IdleSince returns copies of active, non-terminal sessions whose last
// activity predates the cutoff. Used by the inactivity monitor.
func (st *Store) IdleSince(cutoff time.Time) []*Session {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.active))
	for _, e := range st.active {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	var idle []*Session
	for _, e := range entries {
		e.mu.Lock()
		if !e.s.State.Terminal() && e.s.LastActivityAt.Before(cutoff) {
			idle = append(idle, copySession(e.s))
		}
		e.mu.Unlock()
	}
	return idle
}

func copySession(s *Session) *Session {
	c := *s
	return &c
}
