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

// Package generator turns a resolved image into a build context: the
// staged modules, artifacts and repository files plus a rendered
// Containerfile.
package generator

import (
	"context"
	"embed"
	"encoding/json"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"text/template"

	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/resolver"
)

//go:embed templates/*.tmpl
var builtin embed.FS

const (
	containerfileTemplate = "Containerfile.tmpl"
	helpTemplate          = "help.md.tmpl"
)

// DefaultPackageManager is used when a descriptor names none.
const DefaultPackageManager = "yum"

// Stage is one FROM section of the generated file. Only the last stage
// is Final; the others are builder images.
type Stage struct {
	Image   *descriptor.Image
	Modules []*resolver.InstalledModule
	Final   bool
}

// RenderInput is the data handed to a Renderer.
type RenderInput struct {
	Stages      []*Stage
	ToolVersion string
}

// Image returns the image of the final stage.
func (in RenderInput) Image() *descriptor.Image {
	if s := in.final(); s != nil {
		return s.Image
	}
	return nil
}

// Modules returns the modules installed into the final stage.
func (in RenderInput) Modules() []*resolver.InstalledModule {
	if s := in.final(); s != nil {
		return s.Modules
	}
	return nil
}

func (in RenderInput) final() *Stage {
	if len(in.Stages) == 0 {
		return nil
	}
	return in.Stages[len(in.Stages)-1]
}

// NewRenderInput orders the builder stages of res before its image.
func NewRenderInput(res *resolver.Result, toolVersion string) RenderInput {
	in := RenderInput{ToolVersion: toolVersion}
	for _, b := range res.Builders {
		in.Stages = append(in.Stages, &Stage{Image: b, Modules: res.BuilderModules[b.Name]})
	}
	in.Stages = append(in.Stages, &Stage{Image: res.Image, Modules: res.Modules, Final: true})
	return in
}

// Renderer writes one generated file for a resolved image.
type Renderer interface {
	Render(ctx context.Context, in RenderInput, out io.Writer) error
}

// TemplateRenderer renders a text/template.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer returns the Containerfile renderer. A non-empty path
// replaces the built-in template.
func NewTemplateRenderer(path string) (*TemplateRenderer, error) {
	return newRenderer(containerfileTemplate, path)
}

// NewHelpRenderer returns the help.md renderer. A non-empty path replaces
// the built-in template.
func NewHelpRenderer(path string) (*TemplateRenderer, error) {
	return newRenderer(helpTemplate, path)
}

func newRenderer(name, override string) (*TemplateRenderer, error) {
	var (
		text []byte
		err  error
	)
	if override != "" {
		text, err = os.ReadFile(override)
		if err != nil {
			return nil, errors.Wrap("read template", override, err)
		}
	} else {
		text, err = builtin.ReadFile("templates/" + name)
		if err != nil {
			return nil, &errors.InternalError{Msg: "missing built-in template " + name}
		}
	}

	tmpl, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(string(text))
	if err != nil {
		return nil, errors.NewValidation("Template", err.Error())
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// Render executes the template against in.
func (r *TemplateRenderer) Render(_ context.Context, in RenderInput, out io.Writer) error {
	if err := r.tmpl.Execute(out, in); err != nil {
		return errors.Wrap("render template", r.tmpl.Name(), err)
	}
	return nil
}

var funcs = template.FuncMap{
	"quote":        strconv.Quote,
	"toJSON":       toJSON,
	"list":         func(s ...string) []string { return s },
	"repoFile":     repoFile,
	"artifactDest": artifactDest,
	"installCmd":   installCmd,
	"removeCmd":    removeCmd,
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// repoFile is the file name a package repository is staged under.
func repoFile(r *descriptor.PackageRepository) string {
	if strings.HasSuffix(r.Name, ".repo") {
		return r.Name
	}
	return r.Name + ".repo"
}

func artifactDest(r *descriptor.Resource) string {
	dest := r.Dest
	if dest == "" {
		dest = descriptor.DefaultArtifactDest
	}
	return path.Join(dest, r.Target)
}

func installCmd(manager string, pkgs []string) string {
	list := strings.Join(pkgs, " ")
	switch manager {
	case "apk":
		return "apk add --no-cache " + list
	case "apt-get":
		return "apt-get update && apt-get install -y --no-install-recommends " + list +
			" && rm -rf /var/lib/apt/lists/*"
	case "microdnf":
		return "microdnf --setopt=tsflags=nodocs install -y " + list + " && microdnf clean all"
	case "":
		manager = DefaultPackageManager
	}
	return manager + " --setopt=tsflags=nodocs install -y " + list + " && " + manager + " clean all"
}

func removeCmd(manager string, pkgs []string) string {
	list := strings.Join(pkgs, " ")
	switch manager {
	case "apk":
		return "apk del " + list
	case "":
		manager = DefaultPackageManager
	}
	return manager + " remove -y " + list
}
