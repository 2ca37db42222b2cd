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

package builder

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/distgit"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
)

// Default dist-git locations. The repository name from the descriptor's
// osbs.repository.name is appended.
const (
	RedhatDistGitURL = "ssh://pkgs.devel.redhat.com"
	FedoraDistGitURL = "ssh://pkgs.fedoraproject.org"
)

// OSBSOptions configures the osbs engine.
type OSBSOptions struct {
	// Redhat selects rhpkg instead of fedpkg.
	Redhat bool
	// Stage uses the staging variant of the packaging tool.
	Stage      bool
	User       string
	KojiTarget string
	Nowait     bool
	Scratch    bool
	// DistGitURL overrides the dist-git base URL.
	DistGitURL string
	// Dir holds dist-git checkouts. Empty means an osbs directory next to
	// the build context.
	Dir    string
	Author distgit.AuthorSource
}

type osbsEngine struct {
	runner Runner
	args   []string
	opts   OSBSOptions
}

func (e *osbsEngine) Name() string { return OSBS }

func (e *osbsEngine) Build(ctx context.Context, req Request) (*Result, error) {
	img := req.Image
	if img == nil || img.Osbs == nil || img.Osbs.Repository == nil ||
		img.Osbs.Repository.Name == "" || img.Osbs.Repository.Branch == "" {
		return nil, errors.NewValidation("Osbs", "osbs builds need osbs.repository.name and osbs.repository.branch")
	}
	if len(req.Tags) > 0 {
		logging.WarnContext(ctx, "Tags are assigned by OSBS; ignoring %s", strings.Join(req.Tags, ", "))
	}

	start := time.Now()
	repo := e.repo(req.ContextDir, img.Osbs.Repository)
	if err := repo.Prepare(ctx); err != nil {
		return nil, err
	}
	if err := repo.Stage(ctx, req.ContextDir); err != nil {
		return nil, err
	}

	dirty, err := repo.Dirty()
	if err != nil {
		return nil, err
	}
	var commit string
	if dirty {
		commit, err = repo.Commit(ctx, "Sync with "+img.Name+" "+img.Version.String())
		if err != nil {
			return nil, err
		}
		if err := repo.Push(ctx); err != nil {
			return nil, err
		}
	} else {
		logging.InfoContext(ctx, "Dist-git repository is already up to date")
		if commit, err = repo.Head(); err != nil {
			return nil, err
		}
	}

	cmd := Command{Dir: repo.Dir, Name: e.tool(), Args: e.buildArgs(img)}
	if err := run(ctx, e.runner, cmd); err != nil {
		return nil, errors.Wrap("submit OSBS build with", cmd.Name, err)
	}

	return &Result{Engine: OSBS, Commit: commit, Duration: time.Since(start)}, nil
}

func (e *osbsEngine) repo(contextDir string, r *descriptor.OsbsRepository) *distgit.Repo {
	base := e.opts.DistGitURL
	if base == "" {
		base = FedoraDistGitURL
		if e.opts.Redhat {
			base = RedhatDistGitURL
		}
	}
	dir := e.opts.Dir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(contextDir), "osbs")
	}

	repo := distgit.New(
		filepath.Join(dir, path.Base(r.Name)),
		strings.TrimRight(base, "/")+"/"+strings.TrimLeft(r.Name, "/"),
		r.Branch,
	)
	repo.Author = e.opts.Author
	return repo
}

func (e *osbsEngine) tool() string {
	tool := "fedpkg"
	if e.opts.Redhat {
		tool = "rhpkg"
	}
	if e.opts.Stage {
		tool += "-stage"
	}
	return tool
}

func (e *osbsEngine) buildArgs(img *descriptor.Image) []string {
	var args []string
	if e.opts.User != "" {
		args = append(args, "--user", e.opts.User)
	}
	args = append(args, "container-build")

	target := e.opts.KojiTarget
	if target == "" {
		target = img.Osbs.KojiTarget
	}
	if target == "" {
		target = img.Osbs.Repository.Branch + "-containers-candidate"
	}
	args = append(args, "--target", target)

	if e.opts.Nowait {
		args = append(args, "--nowait")
	}
	if e.opts.Scratch {
		args = append(args, "--scratch")
	}
	return append(args, e.args...)
}
