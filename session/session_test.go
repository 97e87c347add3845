/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chainguard.dev/conductor/session"
)

func TestStoreCreate(t *testing.T) {
	t.Parallel()
	st := session.NewStore()

	s, err := st.Create("issue-1", "integration/issue-1", "main")
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if s.State != session.StateCreated {
		t.Errorf("new session state = %q, want %q", s.State, session.StateCreated)
	}
	if s.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q, want %q", s.BaseBranch, "main")
	}

	if _, err := st.Create("issue-1", "integration/other", "main"); err == nil {
		t.Error("Create() with duplicate id succeeded, want error")
	}
	if _, err := st.Create("issue-2", "integration/issue-1", "main"); err == nil {
		t.Error("Create() with duplicate branch succeeded, want error")
	}
	if _, err := st.Create("", "integration/issue-3", "main"); err == nil {
		t.Error("Create() with empty id succeeded, want error")
	}
}

func TestStoreByBranch(t *testing.T) {
	t.Parallel()
	st := session.NewStore()

	if _, err := st.Create("issue-1", "integration/issue-1", "main"); err != nil {
		t.Fatalf("Create() = %v", err)
	}

	s, err := st.ByBranch("integration/issue-1")
	if err != nil {
		t.Fatalf("ByBranch() = %v", err)
	}
	if s.ID != "issue-1" {
		t.Errorf("ByBranch() id = %q, want %q", s.ID, "issue-1")
	}

	if _, err := st.ByBranch("integration/nope"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("ByBranch(unknown) = %v, want ErrNotFound", err)
	}
}

func TestStoreUpdateReturnsCopy(t *testing.T) {
	t.Parallel()
	st := session.NewStore()

	if _, err := st.Create("issue-1", "integration/issue-1", "main"); err != nil {
		t.Fatalf("Create() = %v", err)
	}

	updated, err := st.Update("issue-1", func(s *session.Session) error {
		s.State = session.StatePlanning
		return nil
	})
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}

	// Mutating the returned copy must not leak into the store.
	updated.State = session.StateMerged
	got, err := st.Get("issue-1")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.State != session.StatePlanning {
		t.Errorf("stored state = %q, want %q", got.State, session.StatePlanning)
	}

	// A failing mutation leaves the session untouched.
	boom := errors.New("boom")
	if _, err := st.Update("issue-1", func(*session.Session) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Update() = %v, want %v", err, boom)
	}
	got, err = st.Get("issue-1")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.State != session.StatePlanning {
		t.Errorf("state after failed update = %q, want %q", got.State, session.StatePlanning)
	}
}

func TestStoreUpdateSerializesPerSession(t *testing.T) {
	t.Parallel()
	st := session.NewStore()

	if _, err := st.Create("issue-1", "integration/issue-1", "main"); err != nil {
		t.Fatalf("Create() = %v", err)
	}

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.Update("issue-1", func(s *session.Session) error {
				s.CIRetries++
				return nil
			}); err != nil {
				t.Errorf("Update() = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := st.Get("issue-1")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.CIRetries != writers {
		t.Errorf("CIRetries = %d, want %d (updates must not be lost)", got.CIRetries, writers)
	}
}

func TestStoreArchive(t *testing.T) {
	t.Parallel()
	st := session.NewStore()

	if _, err := st.Create("issue-1", "integration/issue-1", "main"); err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if err := st.Archive("issue-1"); err != nil {
		t.Fatalf("Archive() = %v", err)
	}

	// Archived sessions stay readable but release their branch and refuse
	// updates.
	if _, err := st.Get("issue-1"); err != nil {
		t.Errorf("Get(archived) = %v, want success", err)
	}
	if _, err := st.ByBranch("integration/issue-1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("ByBranch(archived) = %v, want ErrNotFound", err)
	}
	if _, err := st.Update("issue-1", func(*session.Session) error { return nil }); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Update(archived) = %v, want ErrNotFound", err)
	}

	// The branch is reusable by a successor session.
	if _, err := st.Create("issue-1b", "integration/issue-1", "main"); err != nil {
		t.Errorf("Create() on released branch = %v", err)
	}
}

func TestStoreIdleSince(t *testing.T) {
	t.Parallel()
	st := session.NewStore()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("issue-%d", i)
		if _, err := st.Create(id, "integration/"+id, "main"); err != nil {
			t.Fatalf("Create(%s) = %v", id, err)
		}
	}
	// Terminal sessions are never reported idle.
	if _, err := st.Update("issue-3", func(s *session.Session) error {
		s.State = session.StateMerged
		return nil
	}); err != nil {
		t.Fatalf("Update() = %v", err)
	}
	// Fresh activity keeps issue-2 out of the idle set.
	if _, err := st.Update("issue-2", func(*session.Session) error { return nil }); err != nil {
		t.Fatalf("Update() = %v", err)
	}

	idle := st.IdleSince(time.Now().Add(-time.Minute))
	if len(idle) != 0 {
		t.Errorf("IdleSince(past cutoff) returned %d sessions, want 0", len(idle))
	}

	idle = st.IdleSince(time.Now().Add(time.Minute))
	ids := make(map[string]bool, len(idle))
	for _, s := range idle {
		ids[s.ID] = true
	}
	if !ids["issue-1"] || !ids["issue-2"] {
		t.Errorf("IdleSince(future cutoff) = %v, want issue-1 and issue-2", ids)
	}
	if ids["issue-3"] {
		t.Error("IdleSince() reported a terminal session")
	}
}
