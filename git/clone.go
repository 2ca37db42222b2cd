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

// Package git wraps the go-git operations stratum needs: shallow clones of
// resources and module repositories, and commit author lookup.
package git

import (
	"context"
	"os"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
)

// CloneOptions selects what Clone fetches.
type CloneOptions struct {
	URL string
	// Ref is a branch, tag or commit. Empty means the remote HEAD.
	Ref string
	// Depth limits history; zero fetches everything.
	Depth int
}

// Clone clones opts.URL into dest. A ref is tried as a branch, then as a
// tag, and finally by cloning everything and checking the ref out, which
// is the only way to reach a commit hash.
func Clone(ctx context.Context, dest string, opts CloneOptions) (*gogit.Repository, error) {
	logging.DebugContext(ctx, "Cloning %s (ref %q) to %s", logging.RedactURL(opts.URL), opts.Ref, dest)

	cloneOpts := &gogit.CloneOptions{
		URL:   opts.URL,
		Depth: opts.Depth,
	}
	if opts.Ref == "" {
		repo, err := gogit.PlainCloneContext(ctx, dest, false, cloneOpts)
		if err != nil {
			return nil, errors.Wrap("clone repository", logging.RedactURL(opts.URL), err)
		}
		return repo, nil
	}

	cloneOpts.SingleBranch = true
	cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Ref)
	repo, err := gogit.PlainCloneContext(ctx, dest, false, cloneOpts)

	if err != nil {
		logging.DebugContext(ctx, "Branch %s not found, trying as tag", opts.Ref)
		_ = os.RemoveAll(dest)
		cloneOpts.ReferenceName = plumbing.NewTagReferenceName(opts.Ref)
		repo, err = gogit.PlainCloneContext(ctx, dest, false, cloneOpts)
	}

	if err != nil {
		logging.DebugContext(ctx, "Reference clone failed, trying full clone with checkout")
		_ = os.RemoveAll(dest)
		cloneOpts.ReferenceName = ""
		cloneOpts.SingleBranch = false
		cloneOpts.Depth = 0
		repo, err = gogit.PlainCloneContext(ctx, dest, false, cloneOpts)
		if err == nil {
			err = CheckoutRef(repo, opts.Ref)
		}
	}

	if err != nil {
		_ = os.RemoveAll(dest)
		return nil, errors.Wrap("clone repository", logging.RedactURL(opts.URL)+"@"+opts.Ref, err)
	}

	if head, err := repo.Head(); err == nil {
		logging.DebugContext(ctx, "Cloned %s at %s", logging.RedactURL(opts.URL), head.Hash().String()[:8])
	}
	return repo, nil
}

// CheckoutRef checks out ref as a commit hash, a branch or a tag, in that
// order.
func CheckoutRef(repo *gogit.Repository, ref string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap("get worktree", "", err)
	}

	if plumbing.IsHash(ref) {
		if err := wt.Checkout(&gogit.CheckoutOptions{Hash: plumbing.NewHash(ref)}); err == nil {
			return nil
		}
	}

	if err := wt.Checkout(&gogit.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(ref)}); err == nil {
		return nil
	}

	if err := wt.Checkout(&gogit.CheckoutOptions{Branch: plumbing.NewRemoteReferenceName("origin", ref)}); err == nil {
		return nil
	}

	if err := wt.Checkout(&gogit.CheckoutOptions{Branch: plumbing.NewTagReferenceName(ref)}); err == nil {
		return nil
	}

	return errors.Wrap("checkout ref", ref, errors.New("not a valid branch, tag or commit"))
}
