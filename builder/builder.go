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

// Package builder runs container engines against a generated build context.
//
// # Engines
//
// An Engine turns a build context directory (as produced by the generator
// package) into an image. Four engines ship with stratum:
//
//   - docker: runs `docker build` locally
//   - buildah: runs `buildah build` locally, squashing layers by default
//   - podman: runs `podman build` locally, squashing layers by default
//   - osbs: syncs the context into a dist-git repository and submits a
//     container build with rhpkg or fedpkg
//
// Engines are created by name:
//
//	eng, err := builder.New("podman", builder.Options{EngineArgs: "--format docker"})
//	if err != nil {
//	    return err
//	}
//	res, err := eng.Build(ctx, builder.Request{ContextDir: dir, Image: img})
//
// # Subprocesses
//
// Every engine shells out through a Runner. The default runner wraps
// os/exec and streams the child's output; tests substitute a recording
// runner so no container tooling is needed.
//
// # Service
//
// Service ties resolution, context generation and the engine together and
// records each build in a manifest next to the context.
package builder

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
)

// Engine names accepted by New.
const (
	Docker  = "docker"
	Buildah = "buildah"
	Podman  = "podman"
	OSBS    = "osbs"
)

// Engines lists the supported engine names.
func Engines() []string {
	return []string{Buildah, Docker, OSBS, Podman}
}

// IsEngine reports whether name is a supported engine.
func IsEngine(name string) bool {
	return slices.Contains(Engines(), name)
}

// Request is one build of a prepared context.
type Request struct {
	// ContextDir holds the rendered build file and its inputs.
	ContextDir string
	// File is the build file name inside ContextDir.
	File string
	// Image is the effective descriptor the context was generated from.
	Image *descriptor.Image
	// Tags name the built image. Empty means name:version and name:latest.
	Tags []string
	Pull bool
	// NoSquash keeps intermediate layers on engines that squash.
	NoSquash bool
}

// Result describes a finished build.
type Result struct {
	Engine string
	Tags   []string
	// ImageID is reported by local engines.
	ImageID string
	// Commit is the dist-git commit an OSBS build was submitted from.
	Commit   string
	Duration time.Duration
}

// Engine builds images from a prepared context. Build must honor context
// cancellation; a cancelled build returns ctx.Err() in its chain.
type Engine interface {
	Name() string
	Build(ctx context.Context, req Request) (*Result, error)
}

// Options configures the engine created by New.
type Options struct {
	// Runner executes engine commands. Nil uses ExecRunner.
	Runner Runner
	// EngineArgs is appended to the engine command line, split with shell
	// quoting rules.
	EngineArgs string
	OSBS       OSBSOptions
}

// New returns the engine called name.
func New(name string, opts Options) (Engine, error) {
	args, err := splitArgs(opts.EngineArgs)
	if err != nil {
		return nil, err
	}
	runner := opts.Runner
	if runner == nil {
		runner = &ExecRunner{}
	}

	switch name {
	case Docker:
		return &localEngine{name: Docker, runner: runner, args: args}, nil
	case Buildah, Podman:
		return &localEngine{name: name, runner: runner, args: args, squash: true}, nil
	case OSBS:
		return &osbsEngine{runner: runner, args: args, opts: opts.OSBS}, nil
	default:
		return nil, errors.NewValidation("Engine",
			fmt.Sprintf("unknown build engine %q; choose one of %s", name, strings.Join(Engines(), ", ")))
	}
}
