/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package distgit keeps a dist-git repository in sync with a generated
// build context so OSBS can build from it.
package distgit

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	cp "github.com/otiai10/copy"

	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/git"
	"github.com/cowdogmoo/stratum/logging"
)

// DefaultRemote is the remote every dist-git clone pushes to.
const DefaultRemote = "origin"

// preserved entries survive Stage; everything else in the worktree is
// replaced by the build context.
var preserved = []string{".git", "sources", ".gitignore"}

// AuthorSource supplies the commit identity.
type AuthorSource interface {
	Author(ctx context.Context) git.Author
}

// Repo is a local checkout of one dist-git repository branch.
type Repo struct {
	Dir    string
	URL    string
	Branch string
	// Author defaults to the identity in ~/.gitconfig.
	Author AuthorSource

	repo *gogit.Repository
}

// New returns a Repo for url at branch, checked out in dir.
func New(dir, url, branch string) *Repo {
	return &Repo{Dir: dir, URL: url, Branch: branch}
}

// Prepare clones the repository, or fetches it when dir already holds a
// clone, and leaves the worktree at the tip of the remote branch.
func (r *Repo) Prepare(ctx context.Context) error {
	if r.URL == "" || r.Branch == "" {
		return errors.NewValidation("Osbs", "dist-git repository needs a url and a branch")
	}
	if _, err := os.Stat(filepath.Join(r.Dir, ".git")); err != nil {
		logging.InfoContext(ctx, "Cloning dist-git repository %s (branch %s)", logging.RedactURL(r.URL), r.Branch)
		repo, err := git.Clone(ctx, r.Dir, git.CloneOptions{URL: r.URL, Ref: r.Branch})
		if err != nil {
			return err
		}
		r.repo = repo
		return nil
	}

	repo, err := gogit.PlainOpen(r.Dir)
	if err != nil {
		return errors.Wrap("open dist-git repository", r.Dir, err)
	}
	r.repo = repo

	logging.InfoContext(ctx, "Updating dist-git repository in %s", r.Dir)
	err = repo.FetchContext(ctx, &gogit.FetchOptions{RemoteName: DefaultRemote, Force: true})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return errors.Wrap("fetch dist-git repository", logging.RedactURL(r.URL), err)
	}

	remote, err := repo.Reference(plumbing.NewRemoteReferenceName(DefaultRemote, r.Branch), true)
	if err != nil {
		return errors.Wrap("find remote branch", r.Branch, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap("get worktree", r.Dir, err)
	}
	co := &gogit.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(r.Branch), Force: true}
	if _, err := repo.Reference(co.Branch, false); err != nil {
		co.Create = true
		co.Hash = remote.Hash()
	}
	if err := wt.Checkout(co); err != nil {
		return errors.Wrap("checkout branch", r.Branch, err)
	}
	if err := wt.Reset(&gogit.ResetOptions{Commit: remote.Hash(), Mode: gogit.HardReset}); err != nil {
		return errors.Wrap("reset branch", r.Branch, err)
	}
	return nil
}

// Stage replaces the worktree content with the files under src and stages
// the result, deletions included.
func (r *Repo) Stage(ctx context.Context, src string) error {
	wt, err := r.worktree()
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return errors.Wrap("list dist-git repository", r.Dir, err)
	}
	for _, e := range entries {
		if slices.Contains(preserved, e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.Dir, e.Name())); err != nil {
			return errors.Wrap("remove stale file", e.Name(), err)
		}
	}

	if err := cp.Copy(src, r.Dir, cp.Options{
		Skip: func(info os.FileInfo, _, _ string) (bool, error) {
			return info.Name() == ".git", nil
		},
	}); err != nil {
		return errors.Wrap("copy build context", src, err)
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return errors.Wrap("stage changes", r.Dir, err)
	}
	logging.DebugContext(ctx, "Staged %s into %s", src, r.Dir)
	return nil
}

// Dirty reports whether the worktree or index differ from HEAD.
func (r *Repo) Dirty() (bool, error) {
	wt, err := r.worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, errors.Wrap("read status", r.Dir, err)
	}
	return !status.IsClean(), nil
}

// Commit records the staged changes and returns the new commit hash.
func (r *Repo) Commit(ctx context.Context, msg string) (string, error) {
	wt, err := r.worktree()
	if err != nil {
		return "", err
	}

	src := r.Author
	if src == nil {
		src = git.NewConfigReader()
	}
	author := src.Author(ctx)

	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		All: true,
		Author: &object.Signature{
			Name:  author.Name,
			Email: author.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", errors.Wrap("commit", r.Dir, err)
	}
	logging.InfoContext(ctx, "Committed %s as %s", hash.String()[:8], author)
	return hash.String(), nil
}

// Push pushes the branch to its remote. An up-to-date remote is not an
// error.
func (r *Repo) Push(ctx context.Context) error {
	if r.repo == nil {
		return &errors.InternalError{Msg: "dist-git push before prepare"}
	}
	ref := plumbing.NewBranchReferenceName(r.Branch)
	err := r.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: DefaultRemote,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return errors.Wrap("push", logging.RedactURL(r.URL), err)
	}
	logging.InfoContext(ctx, "Pushed %s to %s", r.Branch, logging.RedactURL(r.URL))
	return nil
}

// Head returns the hash of the checked out commit.
func (r *Repo) Head() (string, error) {
	if r.repo == nil {
		return "", &errors.InternalError{Msg: "dist-git repository used before prepare"}
	}
	ref, err := r.repo.Head()
	if err != nil {
		return "", errors.Wrap("read HEAD", r.Dir, err)
	}
	return ref.Hash().String(), nil
}

func (r *Repo) worktree() (*gogit.Worktree, error) {
	if r.repo == nil {
		return nil, &errors.InternalError{Msg: "dist-git repository used before prepare"}
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, errors.Wrap("get worktree", r.Dir, err)
	}
	return wt, nil
}
