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

package generator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
	"github.com/cowdogmoo/stratum/resolver"
	"github.com/cowdogmoo/stratum/resource"
)

// Layout of the generated build context.
const (
	ContextDir      = "image"
	ModulesDir      = "modules"
	ArtifactsDir    = "artifacts"
	ReposDir        = "repos"
	DefaultFileName = "Containerfile"
	HelpFileName    = "help.md"
	DescriptorFile  = "image.yaml"
	ContentSetsFile = "content_sets.yml"
	ContainerYAML   = "container.yaml"
)

// Options configures Prepare.
type Options struct {
	// TargetDir receives the build context under ContextDir.
	TargetDir string
	// Resource configures artifact and repository file fetches. BaseDir
	// also anchors a relative help template path.
	Resource resource.Options
	// Renderer writes the build file. Nil uses the built-in Containerfile
	// template.
	Renderer Renderer
	// FileName is the build file name, Containerfile unless set.
	FileName    string
	ToolVersion string
}

// Prepare stages the build context for res and returns its directory.
// Any previous context in the target is removed first.
func Prepare(ctx context.Context, res *resolver.Result, opts Options) (string, error) {
	if res == nil || res.Image == nil {
		return "", &errors.InternalError{Msg: "nothing to generate: empty resolution"}
	}

	dir := filepath.Join(opts.TargetDir, ContextDir)
	if err := os.RemoveAll(dir); err != nil {
		return "", errors.Wrap("clean build context", dir, err)
	}
	if _, err := config.EnsureDir(dir); err != nil {
		return "", err
	}

	in := NewRenderInput(res, opts.ToolVersion)
	st := &stager{
		dir:       dir,
		opts:      opts,
		modules:   make(map[string]string),
		artifacts: make(map[string]*descriptor.Resource),
	}
	for _, s := range in.Stages {
		if err := st.stage(ctx, s); err != nil {
			return "", err
		}
	}

	renderer := opts.Renderer
	if renderer == nil {
		r, err := NewTemplateRenderer("")
		if err != nil {
			return "", err
		}
		renderer = r
	}
	name := opts.FileName
	if name == "" {
		name = DefaultFileName
	}
	if err := renderTo(ctx, renderer, in, filepath.Join(dir, name)); err != nil {
		return "", err
	}

	img := res.Image
	if img.HelpEnabled() {
		tmpl := ""
		if img.Help.Template != "" {
			tmpl = img.Help.Template
			if !filepath.IsAbs(tmpl) {
				tmpl = filepath.Join(opts.Resource.BaseDir, tmpl)
			}
		}
		help, err := NewHelpRenderer(tmpl)
		if err != nil {
			return "", err
		}
		if err := renderTo(ctx, help, in, filepath.Join(dir, HelpFileName)); err != nil {
			return "", err
		}
	}

	if err := writeExtras(img, dir); err != nil {
		return "", err
	}

	logging.InfoContext(ctx, "Build context for %s:%s ready in %s", img.Name, img.Version, dir)
	return dir, nil
}

func renderTo(ctx context.Context, r Renderer, in RenderInput, file string) error {
	var buf bytes.Buffer
	if err := r.Render(ctx, in, &buf); err != nil {
		return err
	}
	if err := os.WriteFile(file, buf.Bytes(), config.FilePermReadWrite); err != nil {
		return errors.Wrap("write", file, err)
	}
	logging.DebugContext(ctx, "Wrote %s", file)
	return nil
}

// writeExtras stores the effective descriptor and the OSBS side files.
func writeExtras(img *descriptor.Image, dir string) error {
	data, err := descriptor.Marshal(img)
	if err != nil {
		return err
	}
	files := map[string][]byte{DescriptorFile: data}

	if img.Packages != nil && len(img.Packages.ContentSets) > 0 {
		b, err := yaml.Marshal(img.Packages.ContentSets)
		if err != nil {
			return errors.Wrap("encode", ContentSetsFile, err)
		}
		files[ContentSetsFile] = b
	}
	if img.Osbs != nil && img.Osbs.Configuration != nil && len(img.Osbs.Configuration.Container) > 0 {
		b, err := yaml.Marshal(img.Osbs.Configuration.Container)
		if err != nil {
			return errors.Wrap("encode", ContainerYAML, err)
		}
		files[ContainerYAML] = b
	}

	for name, b := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, b, config.FilePermReadWrite); err != nil {
			return errors.Wrap("write", p, err)
		}
	}
	return nil
}

// stager copies the inputs of each stage into the context. Modules and
// artifacts shared between stages are staged once.
type stager struct {
	dir       string
	opts      Options
	modules   map[string]string
	artifacts map[string]*descriptor.Resource
}

func (s *stager) stage(ctx context.Context, st *Stage) error {
	for _, m := range st.Modules {
		if err := s.module(ctx, m); err != nil {
			return err
		}
	}
	for _, a := range st.Image.Artifacts {
		if err := s.artifact(ctx, a); err != nil {
			return err
		}
	}
	if st.Image.Packages != nil {
		for _, r := range st.Image.Packages.Repositories {
			if r.URL == "" {
				continue
			}
			d := &descriptor.Resource{Name: repoFile(r), URL: r.URL}
			if err := d.Normalize(); err != nil {
				return err
			}
			if err := s.fetch(ctx, d, filepath.Join(s.dir, ReposDir)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *stager) module(ctx context.Context, m *resolver.InstalledModule) error {
	name := m.Module.Name
	if prev, ok := s.modules[name]; ok {
		if prev == m.Dir {
			return nil
		}
		return &errors.ConflictError{
			What:   "module",
			Name:   name,
			Reason: "staged from both " + prev + " and " + m.Dir,
		}
	}
	s.modules[name] = m.Dir

	dest := filepath.Join(s.dir, ModulesDir, name)
	err := cp.Copy(m.Dir, dest, cp.Options{
		Skip: func(info os.FileInfo, src, _ string) (bool, error) {
			return info.IsDir() && info.Name() == ".git", nil
		},
	})
	if err != nil {
		return errors.Wrap("stage module", name, err)
	}
	logging.DebugContext(ctx, "Staged module %s from %s", name, m.Dir)
	return nil
}

func (s *stager) artifact(ctx context.Context, a *descriptor.Resource) error {
	if prev, ok := s.artifacts[a.Target]; ok {
		if prev.Name == a.Name {
			same, err := descriptor.Equal(prev, a)
			if err != nil {
				return err
			}
			if same {
				return nil
			}
		}
		return &errors.ConflictError{
			What:   "artifact target",
			Name:   a.Target,
			Reason: "claimed by artifacts " + prev.Name + " and " + a.Name,
		}
	}
	s.artifacts[a.Target] = a
	return s.fetch(ctx, a, filepath.Join(s.dir, ArtifactsDir))
}

func (s *stager) fetch(ctx context.Context, d *descriptor.Resource, dir string) error {
	r, err := resource.New(d, s.opts.Resource)
	if err != nil {
		return err
	}
	_, err = r.Copy(ctx, dir)
	return err
}
