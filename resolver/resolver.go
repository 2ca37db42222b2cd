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

// Package resolver turns an image descriptor into the effective
// descriptor that is rendered and built: overrides are applied, module
// repositories fetched and scanned, and every installed module merged in
// dependency order.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
	"github.com/cowdogmoo/stratum/module"
	"github.com/cowdogmoo/stratum/resource"
)

// LabelToolVersion records the stratum version that resolved an image.
const LabelToolVersion = "io.stratum.version"

// RepositoryDir is the directory under WorkDir that receives module
// repositories.
const RepositoryDir = "repo"

// Options configures a Resolver.
type Options struct {
	// WorkDir receives fetched module repositories under RepositoryDir.
	WorkDir string
	// Overrides are applied in order; later ones win.
	Overrides []*descriptor.Image
	// Resource configures how repositories are fetched.
	Resource resource.Options
	// Validator checks loaded modules and the effective image. Nil uses
	// the built-in schema validator.
	Validator descriptor.Validator
	// ToolVersion, when set, is recorded in the LabelToolVersion label.
	ToolVersion string
}

// InstalledModule is a module merged into an image, in the order the
// merges happened.
type InstalledModule struct {
	Module *descriptor.Module
	Dir    string
}

// Result is the outcome of one resolution.
type Result struct {
	Image *descriptor.Image
	// Modules lists the modules merged into Image, dependencies first.
	Modules []*InstalledModule
	// Builders are the resolved builder images, in stage order.
	Builders []*descriptor.Image
	// BuilderModules lists the installed modules per builder name.
	BuilderModules map[string][]*InstalledModule
	Registry       *module.Registry
	// Repositories maps repository name to its local directory.
	Repositories map[string]string
}

// Resolver resolves image descriptors. It holds no state between calls.
type Resolver struct {
	opts Options
}

// New returns a Resolver. An empty WorkDir means config.DefaultWorkDir.
func New(opts Options) *Resolver {
	if opts.WorkDir == "" {
		opts.WorkDir = config.DefaultWorkDir()
	}
	return &Resolver{opts: opts}
}

// Resolve produces the effective descriptor for image. image itself is
// not modified. On error no result is returned.
func (r *Resolver) Resolve(ctx context.Context, image *descriptor.Image) (*Result, error) {
	if image == nil {
		return nil, &errors.InternalError{Msg: "nil image passed to resolver"}
	}
	img := image.Clone()

	for n, o := range r.opts.Overrides {
		if err := img.ApplyOverride(o); err != nil {
			return nil, errors.Wrap("apply override", fmt.Sprintf("#%d", n+1), err)
		}
	}
	if err := img.Normalize(); err != nil {
		return nil, err
	}
	logging.InfoContext(ctx, "Resolving image %s:%s", img.Name, img.Version)

	run := &resolution{
		resolver: r,
		registry: module.NewRegistry(),
		repos:    make(map[string]*descriptor.Resource),
		dirs:     make(map[string]string),
	}

	repoRoot := filepath.Join(r.opts.WorkDir, RepositoryDir)
	if err := os.RemoveAll(repoRoot); err != nil {
		return nil, errors.Wrap("clean repository directory", repoRoot, err)
	}

	images := append([]*descriptor.Image{img}, img.Builders...)
	for _, i := range images {
		if err := run.collectRepositories(ctx, i, repoRoot); err != nil {
			return nil, err
		}
	}

	installed, moduleBuilders, err := run.installModules(ctx, img)
	if err != nil {
		return nil, err
	}
	for _, b := range moduleBuilders {
		if err := run.collectRepositories(ctx, b, repoRoot); err != nil {
			return nil, err
		}
	}

	builders, builderModules, err := run.resolveBuilders(ctx, slices.Concat(img.Builders, moduleBuilders))
	if err != nil {
		return nil, err
	}
	img.Builders = builders

	r.addDefaultLabels(img)

	doc, err := descriptor.ToMap(img)
	if err != nil {
		return nil, err
	}
	if err := r.validator().Validate(descriptor.KindImage, doc); err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Resolved image %s:%s with %d module(s)", img.Name, img.Version, len(installed))
	return &Result{
		Image:          img,
		Modules:        installed,
		Builders:       builders,
		BuilderModules: builderModules,
		Registry:       run.registry,
		Repositories:   run.dirs,
	}, nil
}

func (r *Resolver) validator() descriptor.Validator {
	if r.opts.Validator != nil {
		return r.opts.Validator
	}
	return descriptor.DefaultValidator()
}

// addDefaultLabels adds the identity labels the image does not set.
func (r *Resolver) addDefaultLabels(img *descriptor.Image) {
	defaults := []*descriptor.Label{
		{Name: "name", Value: descriptor.Scalar(img.Name)},
		{Name: "version", Value: img.Version},
		{Name: ocispec.AnnotationTitle, Value: descriptor.Scalar(img.Name)},
		{Name: ocispec.AnnotationVersion, Value: img.Version},
	}
	if img.Description != "" {
		defaults = append(defaults,
			&descriptor.Label{Name: "summary", Value: descriptor.Scalar(img.Description)},
			&descriptor.Label{Name: "description", Value: descriptor.Scalar(img.Description)},
		)
	}
	if r.opts.ToolVersion != "" {
		defaults = append(defaults, &descriptor.Label{Name: LabelToolVersion, Value: descriptor.Scalar(r.opts.ToolVersion)})
	}

	for _, l := range defaults {
		if img.Label(l.Name) == nil {
			img.Labels = append(img.Labels, l)
		}
	}
}

// resolution is the state of a single Resolve call.
type resolution struct {
	resolver *Resolver
	registry *module.Registry
	repos    map[string]*descriptor.Resource
	dirs     map[string]string
}

// collectRepositories fetches the module repositories of img and
// registers the modules found in them. A repository name seen before is
// skipped when it describes the same source and is a ConflictError when it
// does not.
func (s *resolution) collectRepositories(ctx context.Context, img *descriptor.Image, root string) error {
	if img.Modules == nil {
		return nil
	}

	for _, repo := range img.Modules.Repositories {
		if err := ctx.Err(); err != nil {
			return err
		}

		if prev, ok := s.repos[repo.Name]; ok {
			same, err := descriptor.Equal(prev, repo)
			if err != nil {
				return err
			}
			if !same {
				return &errors.ConflictError{
					What:   "module repository",
					Name:   repo.Name,
					Reason: "two different sources share this name; rename one of them",
				}
			}
			logging.DebugContext(ctx, "Module repository %s already fetched", repo.Name)
			continue
		}

		res, err := resource.New(repo, s.resolver.opts.Resource)
		if err != nil {
			return err
		}
		dir, err := res.Copy(ctx, root)
		if err != nil {
			return err
		}
		s.repos[repo.Name] = repo
		s.dirs[repo.Name] = dir

		n, err := module.Discover(ctx, dir, s.registry, s.resolver.opts.Validator)
		if err != nil {
			return err
		}
		logging.InfoContext(ctx, "Module repository %s provides %d module(s)", repo.Name, n)
	}
	return nil
}

// installer merges the installs of one image tree.
type installer struct {
	*resolution
	versions  map[string]string
	installed []*InstalledModule
	builders  []*descriptor.Image
}

// installModules merges the install tree of img into it and returns the
// installed modules with the builder images they declare.
func (s *resolution) installModules(ctx context.Context, img *descriptor.Image) ([]*InstalledModule, []*descriptor.Image, error) {
	in := &installer{resolution: s, versions: make(map[string]string)}
	if img.Modules == nil {
		return nil, nil, nil
	}
	if err := in.installAll(ctx, img, img.Modules.Install, nil); err != nil {
		return nil, nil, err
	}
	return in.installed, in.builders, nil
}

// installAll merges each install into target in order. A module's own
// installs are merged into it before it is merged into target. chain
// holds the modules currently being resolved.
func (in *installer) installAll(ctx context.Context, target *descriptor.Image, installs []*descriptor.Install, chain []string) error {
	for _, inst := range installs {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := in.registry.Get(ctx, inst.Name, inst.Version.String())
		if err != nil {
			return errors.Wrap("resolve module", describe(inst), err)
		}
		version := m.Version.String()

		if slices.Contains(chain, m.Name) {
			return &errors.ConflictError{
				What:   "module",
				Name:   m.Name,
				Reason: "dependency cycle " + strings.Join(append(chain, m.Name), " -> "),
			}
		}
		if prev, ok := in.versions[m.Name]; ok {
			if prev != version {
				return &errors.ConflictError{
					What:   "module",
					Name:   m.Name,
					Reason: fmt.Sprintf("installed in versions %s and %s", prev, version),
				}
			}
			logging.DebugContext(ctx, "Module %s:%s already installed", m.Name, version)
			continue
		}
		in.versions[m.Name] = version

		mod := m.Clone()
		if mod.Modules != nil && len(mod.Modules.Install) > 0 {
			if err := in.installAll(ctx, &mod.Image, mod.Modules.Install, append(chain, m.Name)); err != nil {
				return err
			}
		}

		if err := target.MergeModule(mod); err != nil {
			return errors.Wrap("merge module", m.Name+":"+version, err)
		}
		in.installed = append(in.installed, &InstalledModule{Module: mod, Dir: m.Dir})
		in.builders = append(in.builders, mod.Builders...)
		logging.DebugContext(ctx, "Merged module %s:%s", m.Name, version)
	}
	return nil
}

// resolveBuilders installs the modules of each builder image. Names are
// unique; the first definition wins.
func (s *resolution) resolveBuilders(ctx context.Context, declared []*descriptor.Image) ([]*descriptor.Image, map[string][]*InstalledModule, error) {
	var builders []*descriptor.Image
	modules := make(map[string][]*InstalledModule)

	for _, b := range declared {
		if slices.ContainsFunc(builders, func(x *descriptor.Image) bool { return x.Name == b.Name }) {
			logging.DebugContext(ctx, "Builder image %s already declared, keeping the first", b.Name)
			continue
		}
		installed, _, err := s.installModules(ctx, b)
		if err != nil {
			return nil, nil, errors.Wrap("resolve builder image", b.Name, err)
		}
		builders = append(builders, b)
		modules[b.Name] = installed
	}
	return builders, modules, nil
}

func describe(inst *descriptor.Install) string {
	if inst.Version == "" {
		return inst.Name
	}
	return inst.Name + ":" + inst.Version.String()
}
