/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package worktree owns a pool of git clones of the orchestrated repository.
// Leases hydrate a clone at a session branch and can render the unified diff
// against the integration base, which becomes the change context handed to
// quality agents.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const cloneDirPrefix = "conductor-clone-"

// remoteURL resolves the git URL for the managed repository. Tests override
// this to point at local fixture repositories.
var remoteURL = defaultRemoteURL

func defaultRemoteURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, repo)
}

// Manager owns the clone pool for one repository.
type Manager struct {
	tokenSource oauth2.TokenSource
	owner       string
	repo        string

	mu        sync.Mutex
	available []*clone
}

type clone struct {
	path string
	repo *git.Repository
}

// Lease is an acquired clone checked out at a session branch.
type Lease struct {
	manager *Manager
	clone   *clone
	branch  string
	sha     string
}

// New constructs a Manager. The token source must allow cloning the
// repository.
func New(tokenSource oauth2.TokenSource, owner, repo string) (*Manager, error) {
	switch {
	case tokenSource == nil:
		return nil, errors.New("token source cannot be nil")
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case repo == "":
		return nil, errors.New("repo cannot be empty")
	}
	return &Manager{tokenSource: tokenSource, owner: owner, repo: repo}, nil
}

// Lease hydrates a clone at the given branch and returns a handle. Callers
// must invoke Return to release the clone back to the pool.
func (m *Manager) Lease(ctx context.Context, branch string) (*Lease, error) {
	if branch == "" {
		return nil, errors.New("branch cannot be empty")
	}

	cl, err := m.acquireClone(ctx, branch)
	if err != nil {
		return nil, err
	}

	sha, err := m.prepareClone(ctx, cl, branch)
	if err != nil {
		clog.FromContext(ctx).Warnf("Discarding clone after prepare failure: %v", err)
		m.discardClone(cl)
		return nil, err
	}

	return &Lease{manager: m, clone: cl, branch: branch, sha: sha}, nil
}

// acquireClone returns a clone from the pool or creates a new one. Clones are
// taken from the front and released to the back, so recently returned clones
// age before reuse.
func (m *Manager) acquireClone(ctx context.Context, branch string) (*clone, error) {
	m.mu.Lock()
	if n := len(m.available); n > 0 {
		cl := m.available[0]
		m.available = m.available[1:]
		m.mu.Unlock()
		return cl, nil
	}
	m.mu.Unlock()

	return m.createClone(ctx, branch)
}

func (m *Manager) createClone(ctx context.Context, branch string) (*clone, error) {
	dir, err := os.MkdirTemp("", cloneDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	remote := remoteURL(m.owner, m.repo)
	clog.FromContext(ctx).Infof("Cloning repository %s into %s", remote, dir)

	auth, err := m.authForRemote()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("getting token: %w", err)
	}

	repo, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  false,
		Auth:          auth,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	return &clone{path: dir, repo: repo}, nil
}

func (m *Manager) prepareClone(ctx context.Context, cl *clone, branch string) (string, error) {
	repo := cl.repo
	if repo == nil {
		var err error
		repo, err = git.PlainOpen(cl.path)
		if err != nil {
			return "", fmt.Errorf("opening repo: %w", err)
		}
		cl.repo = repo
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return "", fmt.Errorf("resetting worktree: %w", err)
	}
	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return "", fmt.Errorf("cleaning worktree: %w", err)
	}

	if err := m.fetchBranch(ctx, repo, branch); err != nil {
		return "", err
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return "", fmt.Errorf("getting remote ref %s: %w", branch, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Hash: remoteRef.Hash(), Force: true}); err != nil {
		return "", fmt.Errorf("checking out ref %s: %w", branch, err)
	}

	return remoteRef.Hash().String(), nil
}

func (m *Manager) fetchBranch(ctx context.Context, repo *git.Repository, branch string) error {
	auth, err := m.authForRemote()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	clog.FromContext(ctx).Infof("Fetching ref %s", branch)
	err = repo.Fetch(&git.FetchOptions{
		RefSpecs: []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch))},
		Auth:     auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching ref %s: %w", branch, err)
	}
	return nil
}

func (m *Manager) resetClone(cl *clone) error {
	worktree, err := cl.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting worktree: %w", err)
	}
	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning worktree: %w", err)
	}
	return nil
}

func (m *Manager) releaseClone(cl *clone) {
	m.mu.Lock()
	m.available = append(m.available, cl)
	m.mu.Unlock()
}

func (m *Manager) discardClone(cl *clone) {
	os.RemoveAll(cl.path)
}

func (m *Manager) authForRemote() (*githttp.BasicAuth, error) {
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

// DiffAgainst renders the unified diff from the base branch to the leased
// branch, the merge-base-free two-dot form.
func (l *Lease) DiffAgainst(ctx context.Context, base string) (string, error) {
	if base == "" {
		return "", errors.New("base branch cannot be empty")
	}
	repo := l.clone.repo

	if err := l.manager.fetchBranch(ctx, repo, base); err != nil {
		return "", err
	}
	baseRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", base), true)
	if err != nil {
		return "", fmt.Errorf("getting remote ref %s: %w", base, err)
	}

	baseCommit, err := repo.CommitObject(baseRef.Hash())
	if err != nil {
		return "", fmt.Errorf("getting base commit: %w", err)
	}
	headCommit, err := repo.CommitObject(plumbing.NewHash(l.sha))
	if err != nil {
		return "", fmt.Errorf("getting head commit: %w", err)
	}

	patch, err := baseCommit.PatchContext(ctx, headCommit)
	if err != nil {
		return "", fmt.Errorf("computing patch: %w", err)
	}
	return patch.String(), nil
}

// ChangedFiles lists the paths a unified diff touches, in diff order.
func ChangedFiles(diff string) []string {
	var files []string
	for line := range strings.Lines(diff) {
		if name, ok := strings.CutPrefix(strings.TrimSuffix(line, "\n"), "+++ b/"); ok {
			files = append(files, name)
		}
	}
	return files
}

// Description returns the subject line of the leased branch's head commit.
func (l *Lease) Description() (string, error) {
	commit, err := l.clone.repo.CommitObject(plumbing.NewHash(l.sha))
	if err != nil {
		return "", fmt.Errorf("getting commit object: %w", err)
	}
	return summaryLine(commit), nil
}

func summaryLine(commit *object.Commit) string {
	msg, _, _ := strings.Cut(commit.Message, "\n")
	return msg
}

// ID returns a clone ID based on the underlying working tree path.
func (l *Lease) ID() string {
	return filepath.Base(l.clone.path)
}

// Branch returns the leased branch name.
func (l *Lease) Branch() string {
	return l.branch
}

// SHA returns the commit hash currently checked out by the lease.
func (l *Lease) SHA() string {
	return l.sha
}

// Dir returns the absolute path to the lease's working directory.
func (l *Lease) Dir() string {
	return l.clone.path
}

// Return resets the working tree and places the clone back into the pool.
// Once Return succeeds, the lease is invalid.
func (l *Lease) Return(ctx context.Context) error {
	if err := l.manager.resetClone(l.clone); err != nil {
		l.manager.discardClone(l.clone)
		l.clone = nil
		return err
	}

	l.manager.releaseClone(l.clone)
	l.clone = nil
	l.manager = nil
	l.sha = ""
	return nil
}
