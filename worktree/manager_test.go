/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package worktree

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
)

func TestLeaseLifecycle(t *testing.T) {
	ctx := context.Background()

	repoDir, _, branchSHA := initTestRepo(t)
	remoteURL = func(string, string) string { return repoDir }
	t.Cleanup(func() { remoteURL = defaultRemoteURL })

	mgr, err := New(staticTokenSource(""), "tests", "fixture")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	lease, err := mgr.Lease(ctx, "integration/issue-1")
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}

	if got := lease.SHA(); got != branchSHA {
		t.Errorf("SHA = %s, want %s", got, branchSHA)
	}
	if got := lease.Branch(); got != "integration/issue-1" {
		t.Errorf("Branch = %q", got)
	}
	if lease.ID() == "" {
		t.Error("ID is empty")
	}

	workDir := lease.Dir()
	if workDir == repoDir {
		t.Fatal("working dir should differ from the remote")
	}
	if _, err := os.Stat(filepath.Join(workDir, "store_test.go")); err != nil {
		t.Errorf("branch file missing from working tree: %v", err)
	}

	desc, err := lease.Description()
	if err != nil {
		t.Fatalf("Description: %v", err)
	}
	if desc != "Fix the cache bug" {
		t.Errorf("Description = %q, want the head commit subject", desc)
	}

	diff, err := lease.DiffAgainst(ctx, "main")
	if err != nil {
		t.Fatalf("DiffAgainst: %v", err)
	}
	if want := []string{"store_test.go"}; !cmp.Equal(ChangedFiles(diff), want) {
		t.Errorf("ChangedFiles(diff) = %v, want %v", ChangedFiles(diff), want)
	}

	// Scratch files must not survive a Return.
	scratch := filepath.Join(workDir, "scratch.txt")
	if err := os.WriteFile(scratch, []byte("temporary"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := lease.Return(ctx); err != nil {
		t.Fatalf("Return: %v", err)
	}

	lease2, err := mgr.Lease(ctx, "integration/issue-1")
	if err != nil {
		t.Fatalf("Lease reuse: %v", err)
	}
	if lease2.Dir() != workDir {
		t.Error("expected the returned clone to be reused")
	}
	if _, err := os.Stat(scratch); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected scratch file cleaned, got err=%v", err)
	}
	if err := lease2.Return(ctx); err != nil {
		t.Fatalf("Return lease2: %v", err)
	}
}

func TestChangedFiles(t *testing.T) {
	t.Parallel()

	diff := `diff --git a/store.go b/store.go
index 1111111..2222222 100644
--- a/store.go
+++ b/store.go
@@ -1,2 +1,3 @@
 package store
+// changed
diff --git a/store_test.go b/store_test.go
new file mode 100644
--- /dev/null
+++ b/store_test.go
@@ -0,0 +1 @@
+package store
`
	want := []string{"store.go", "store_test.go"}
	if got := ChangedFiles(diff); !cmp.Equal(got, want) {
		t.Errorf("ChangedFiles() = %v, want %v", got, want)
	}
	if got := ChangedFiles(""); got != nil {
		t.Errorf("ChangedFiles(empty) = %v, want nil", got)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, "octo", "repo"); err == nil {
		t.Error("New(nil token source) succeeded, want error")
	}
	if _, err := New(staticTokenSource(""), "", "repo"); err == nil {
		t.Error("New with empty owner succeeded, want error")
	}
	if _, err := New(staticTokenSource(""), "octo", ""); err == nil {
		t.Error("New with empty repo succeeded, want error")
	}

	mgr, err := New(staticTokenSource(""), "octo", "repo")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := mgr.Lease(context.Background(), ""); err == nil {
		t.Error("Lease with empty branch succeeded, want error")
	}
}

// initTestRepo builds a fixture repository with a main branch and an
// integration branch carrying one extra file.
func initTestRepo(t *testing.T) (dir, mainSHA, branchSHA string) {
	t.Helper()

	dir = t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		t.Fatalf("SetReference: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	commit := func(path, content, message string) string {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, path), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := wt.Add(path); err != nil {
			t.Fatalf("Add: %v", err)
		}
		hash, err := wt.Commit(message, &git.CommitOptions{
			Author: &object.Signature{
				Name:  "Test",
				Email: "test@example.com",
				When:  time.Now(),
			},
		})
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return hash.String()
	}

	mainSHA = commit("store.go", "package store\n", "initial import")

	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("integration/issue-1"),
		Create: true,
	}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	branchSHA = commit("store_test.go", "package store\n", "Fix the cache bug\n\nAdds the missing test.")

	return dir, mainSHA, branchSHA
}

type staticTokenSource string

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(s)}, nil
}
