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

// Package descriptor holds the typed image and module descriptors, their
// loaders and the merge engine that combines them.
package descriptor

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cowdogmoo/stratum/checksum"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// DefaultArtifactDest is where artifacts land inside the image unless a
// descriptor says otherwise.
const DefaultArtifactDest = "/tmp/artifacts/"

// Scalar is a descriptor value that may be written as a YAML string,
// number or boolean. It keeps the literal text, so version 1.10 stays
// "1.10".
type Scalar string

func (s *Scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", n.Line)
	}
	if n.Tag == "!!null" {
		*s = ""
		return nil
	}
	*s = Scalar(n.Value)
	return nil
}

func (s Scalar) String() string { return string(s) }

func (Scalar) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "number"},
			{Type: "boolean"},
		},
	}
}

// Keyed is implemented by list elements that are merged by identity
// rather than by value.
type Keyed interface {
	MergeKey() string
}

// Image is an image descriptor. Builders holds the intermediate images of
// a multi-stage build, in build order.
type Image struct {
	SchemaVersion int         `yaml:"schema_version,omitempty"`
	Name          string      `yaml:"name" merge:"skip" jsonschema:"required,minLength=1"`
	Version       Scalar      `yaml:"version" merge:"skip" jsonschema:"required"`
	Release       Scalar      `yaml:"release,omitempty" merge:"skip"`
	Description   string      `yaml:"description,omitempty" merge:"skip"`
	From          string      `yaml:"from,omitempty"`
	Labels        []*Label    `yaml:"labels,omitempty"`
	Envs          []*Env      `yaml:"envs,omitempty"`
	Ports         []*Port     `yaml:"ports,omitempty"`
	Run           *Run        `yaml:"run,omitempty"`
	Artifacts     []*Resource `yaml:"artifacts,omitempty"`
	Modules       *Modules    `yaml:"modules,omitempty"`
	Packages      *Packages   `yaml:"packages,omitempty"`
	Osbs          *Osbs       `yaml:"osbs,omitempty"`
	Volumes       []*Volume   `yaml:"volumes,omitempty"`
	Help          *Help       `yaml:"help,omitempty"`
	Builders      []*Image    `yaml:"builders,omitempty"`
}

func (i *Image) MergeKey() string { return i.Name }

// Module is a reusable unit of image configuration with its own scripts.
// Dir is the directory the module was loaded from.
type Module struct {
	Image   `yaml:",inline"`
	Execute []*Execute `yaml:"execute,omitempty"`
	Dir     string     `yaml:"-"`
}

type Modules struct {
	Repositories []*Resource `yaml:"repositories,omitempty"`
	Install      []*Install  `yaml:"install,omitempty"`
}

// Install requests a module by name and optionally pins its version.
type Install struct {
	Name    string `yaml:"name" jsonschema:"required,minLength=1"`
	Version Scalar `yaml:"version,omitempty"`
}

func (i *Install) MergeKey() string { return i.Name }

type Label struct {
	Name        string `yaml:"name" jsonschema:"required,minLength=1"`
	Value       Scalar `yaml:"value" jsonschema:"required"`
	Description string `yaml:"description,omitempty"`
}

func (l *Label) MergeKey() string { return l.Name }

type Env struct {
	Name        string `yaml:"name" jsonschema:"required,minLength=1"`
	Value       Scalar `yaml:"value,omitempty"`
	Example     Scalar `yaml:"example,omitempty"`
	Description string `yaml:"description,omitempty"`
}

func (e *Env) MergeKey() string { return e.Name }

// Port is identified by its number.
type Port struct {
	Value       int    `yaml:"value" jsonschema:"required,minimum=1,maximum=65535"`
	Expose      *bool  `yaml:"expose,omitempty"`
	Protocol    string `yaml:"protocol,omitempty" jsonschema:"enum=tcp,enum=udp"`
	Service     string `yaml:"service,omitempty"`
	Description string `yaml:"description,omitempty"`
}

func (p *Port) MergeKey() string { return strconv.Itoa(p.Value) }

// Exposed reports whether the port should be published. Ports are
// exposed unless expose: false is set.
func (p *Port) Exposed() bool { return p.Expose == nil || *p.Expose }

// Volume is identified by its name, which defaults to the base name of
// its path.
type Volume struct {
	Name string `yaml:"name,omitempty"`
	Path string `yaml:"path" jsonschema:"required,minLength=1"`
}

func (v *Volume) MergeKey() string { return v.Name }

type Run struct {
	User       Scalar   `yaml:"user,omitempty"`
	Cmd        []string `yaml:"cmd,omitempty" merge:"skip"`
	Entrypoint []string `yaml:"entrypoint,omitempty" merge:"skip"`
	Workdir    string   `yaml:"workdir,omitempty"`
}

type Packages struct {
	Manager         string               `yaml:"manager,omitempty" jsonschema:"enum=yum,enum=dnf,enum=microdnf,enum=apk,enum=apt-get"`
	Repositories    []*PackageRepository `yaml:"repositories,omitempty"`
	Install         []string             `yaml:"install,omitempty"`
	Remove          []string             `yaml:"remove,omitempty"`
	ContentSets     map[string][]string  `yaml:"content_sets,omitempty"`
	ContentSetsFile string               `yaml:"content_sets_file,omitempty"`
}

// PackageRepository is a package manager repository: either an already
// installed repository package (Rpm) or a repo file fetched from URL.
type PackageRepository struct {
	Name string `yaml:"name" jsonschema:"required,minLength=1"`
	ID   string `yaml:"id,omitempty"`
	URL  string `yaml:"url,omitempty"`
	Rpm  string `yaml:"rpm,omitempty"`
}

func (r *PackageRepository) MergeKey() string { return r.Name }

type Osbs struct {
	Repository    *OsbsRepository    `yaml:"repository,omitempty"`
	Configuration *OsbsConfiguration `yaml:"configuration,omitempty"`
	KojiTarget    string             `yaml:"koji_target,omitempty"`
	ExtraDir      string             `yaml:"extra_dir,omitempty"`
}

type OsbsRepository struct {
	Name   string `yaml:"name,omitempty"`
	Branch string `yaml:"branch,omitempty"`
}

// OsbsConfiguration is written to container.yaml in the dist-git repo.
type OsbsConfiguration struct {
	Container     map[string]any `yaml:"container,omitempty"`
	ContainerFile string         `yaml:"container_file,omitempty"`
}

type Help struct {
	Add      *bool  `yaml:"add,omitempty"`
	Template string `yaml:"template,omitempty"`
}

// Execute is one script run by a module. Name, User and Directory are
// filled in from the owning module when the module is loaded.
type Execute struct {
	Name       string `yaml:"name,omitempty"`
	Script     string `yaml:"script" jsonschema:"required,minLength=1"`
	User       Scalar `yaml:"user,omitempty"`
	Directory  string `yaml:"directory,omitempty"`
	ModuleName string `yaml:"module_name,omitempty"`
}

func (e *Execute) MergeKey() string { return e.Name }

// GitRef locates a git repository at a branch, tag or commit.
type GitRef struct {
	URL string `yaml:"url" jsonschema:"required,minLength=1"`
	Ref string `yaml:"ref,omitempty"`
}

// ResourceKind is the variant of a resource descriptor.
type ResourceKind string

const (
	PathKind  ResourceKind = "path"
	URLKind   ResourceKind = "url"
	GitKind   ResourceKind = "git"
	PlainKind ResourceKind = "plain"
)

// Resource describes a fetchable artifact. Exactly one of Path, URL and
// Git selects the variant; with none of them the resource is identified
// by checksum alone.
type Resource struct {
	Name        string  `yaml:"name,omitempty"`
	Path        string  `yaml:"path,omitempty"`
	URL         string  `yaml:"url,omitempty"`
	Git         *GitRef `yaml:"git,omitempty"`
	Target      string  `yaml:"target,omitempty"`
	Dest        string  `yaml:"dest,omitempty"`
	Description string  `yaml:"description,omitempty"`
	MD5         string  `yaml:"md5,omitempty" merge:"skip"`
	SHA1        string  `yaml:"sha1,omitempty" merge:"skip"`
	SHA256      string  `yaml:"sha256,omitempty" merge:"skip"`
	SHA512      string  `yaml:"sha512,omitempty" merge:"skip"`
}

func (r *Resource) MergeKey() string { return r.Name }

// Checksums returns the declared digests keyed by algorithm.
func (r *Resource) Checksums() map[string]string {
	sums := make(map[string]string, 4)
	for alg, v := range map[string]string{
		checksum.MD5:    r.MD5,
		checksum.SHA1:   r.SHA1,
		checksum.SHA256: r.SHA256,
		checksum.SHA512: r.SHA512,
	} {
		if v = strings.TrimSpace(v); v != "" {
			sums[alg] = strings.ToLower(v)
		}
	}
	return sums
}

// Kind returns the variant selected by the keys present.
func (r *Resource) Kind() (ResourceKind, error) {
	var kinds []ResourceKind
	if r.Path != "" {
		kinds = append(kinds, PathKind)
	}
	if r.URL != "" {
		kinds = append(kinds, URLKind)
	}
	if r.Git != nil {
		kinds = append(kinds, GitKind)
	}

	switch len(kinds) {
	case 1:
		return kinds[0], nil
	case 0:
		if len(r.Checksums()) == 0 {
			return "", errors.NewValidation("Resource",
				fmt.Sprintf("resource %q needs one of path, url, git or a checksum", r.Name))
		}
		return PlainKind, nil
	default:
		return "", errors.NewValidation("Resource",
			fmt.Sprintf("resource %q sets more than one of path, url, git", r.Name))
	}
}

// Normalize checks the variant and fills in computed defaults for name,
// target and dest.
func (r *Resource) Normalize() error {
	k, err := r.Kind()
	if err != nil {
		return err
	}

	if r.Name == "" {
		switch k {
		case PathKind:
			r.Name = filepath.Base(filepath.Clean(r.Path))
		case URLKind:
			r.Name = urlBase(r.URL)
		case GitKind:
			r.Name = gitName(r.Git)
		case PlainKind:
			return errors.NewValidation("Resource", "a resource identified only by checksum needs a name")
		}
	}

	if r.Target == "" {
		if k == GitKind {
			r.Target = gitName(r.Git)
		} else {
			r.Target = path.Base(r.Name)
		}
	}

	if r.Dest == "" {
		r.Dest = DefaultArtifactDest
	}
	return nil
}

func urlBase(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return path.Base(strings.TrimRight(u.Path, "/"))
	}
	return path.Base(strings.TrimRight(raw, "/"))
}

// gitName is basename(url)-ref, or just the base name when no ref is set.
func gitName(g *GitRef) string {
	base := strings.TrimSuffix(urlBase(g.URL), ".git")
	if g.Ref == "" {
		return base
	}
	return base + "-" + strings.ReplaceAll(g.Ref, "/", "-")
}

// Normalize fills computed defaults throughout the image, including its
// builder images.
func (i *Image) Normalize() error {
	for _, v := range i.Volumes {
		if v.Name == "" {
			v.Name = path.Base(strings.TrimRight(v.Path, "/"))
		}
	}
	for _, a := range i.Artifacts {
		if err := a.Normalize(); err != nil {
			return err
		}
	}
	if i.Modules != nil {
		for _, r := range i.Modules.Repositories {
			if err := r.Normalize(); err != nil {
				return err
			}
		}
	}
	for _, b := range i.Builders {
		if err := b.Normalize(); err != nil {
			return err
		}
	}
	return nil
}

// Normalize fills the image defaults and the execute entries' name, user
// and directory from the module.
func (m *Module) Normalize() error {
	if err := m.Image.Normalize(); err != nil {
		return err
	}
	for _, e := range m.Execute {
		if e.Name == "" {
			e.Name = m.Name + "/" + e.Script
		}
		if e.User == "" {
			e.User = "root"
		}
		e.Directory = m.Name
		e.ModuleName = m.Name
	}
	return nil
}

// HelpEnabled reports whether help.md should be generated.
func (i *Image) HelpEnabled() bool {
	return i.Help != nil && i.Help.Add != nil && *i.Help.Add
}

// Label returns the label named name, or nil.
func (i *Image) Label(name string) *Label {
	for _, l := range i.Labels {
		if l.Name == name {
			return l
		}
	}
	return nil
}
