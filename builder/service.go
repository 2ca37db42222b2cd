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
	"path/filepath"

	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/generator"
	"github.com/cowdogmoo/stratum/logging"
	"github.com/cowdogmoo/stratum/resolver"
	"github.com/cowdogmoo/stratum/resource"
)

// BuildOptions are the per-invocation settings of a Service build.
type BuildOptions struct {
	// TargetDir receives the build context and the build manifest.
	TargetDir string
	Tags      []string
	Pull      bool
	NoSquash  bool
	// DryRun stops after the build context is generated.
	DryRun bool
	// FileName is the generated build file name.
	FileName string
	// Renderer overrides the built-in Containerfile template.
	Renderer    generator.Renderer
	Resource    resource.Options
	ToolVersion string
}

// BuildService runs the complete workflow: resolve the image, generate
// its build context, run the engine and record the result.
type BuildService struct {
	resolver *resolver.Resolver
	engine   Engine
}

// NewBuildService creates a build service. engine may be nil when only
// dry runs are requested.
func NewBuildService(r *resolver.Resolver, engine Engine) *BuildService {
	return &BuildService{resolver: r, engine: engine}
}

// Execute builds image. The manifest is written to TargetDir/build.json
// for real builds and returned in both cases.
func (s *BuildService) Execute(ctx context.Context, image *descriptor.Image, opts BuildOptions) (*BuildManifest, error) {
	if !opts.DryRun && s.engine == nil {
		return nil, &errors.InternalError{Msg: "build requested without an engine"}
	}

	res, err := s.resolver.Resolve(ctx, image)
	if err != nil {
		return nil, err
	}

	dir, err := generator.Prepare(ctx, res, generator.Options{
		TargetDir:   opts.TargetDir,
		Resource:    opts.Resource,
		Renderer:    opts.Renderer,
		FileName:    opts.FileName,
		ToolVersion: opts.ToolVersion,
	})
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		logging.InfoContext(ctx, "Dry run: build context generated in %s, skipping build", dir)
		return NewBuildManifest(res, nil, opts.ToolVersion), nil
	}

	file := opts.FileName
	if file == "" {
		file = generator.DefaultFileName
	}
	result, err := s.engine.Build(ctx, Request{
		ContextDir: dir,
		File:       file,
		Image:      res.Image,
		Tags:       opts.Tags,
		Pull:       opts.Pull,
		NoSquash:   opts.NoSquash,
	})
	if err != nil {
		return nil, err
	}

	m := NewBuildManifest(res, result, opts.ToolVersion)
	path := filepath.Join(opts.TargetDir, ManifestFile)
	if err := WriteManifest(path, m); err != nil {
		return nil, err
	}
	logging.InfoContext(ctx, "Build manifest written to %s", path)
	return m, nil
}
