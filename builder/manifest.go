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
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/resolver"
)

// ManifestFile is the build record written into the target directory.
const ManifestFile = "build.json"

// BuildManifest records what a build produced and what went into it, for
// CI pipelines and later inspection.
type BuildManifest struct {
	// Image and Version identify the effective descriptor.
	Image   string `json:"image"`
	Version string `json:"version"`

	// Engine is the engine that ran the build.
	Engine string `json:"engine"`

	// Timestamp is when the build completed
	Timestamp time.Time `json:"timestamp"`

	// Duration is the build time in human-readable format
	Duration string `json:"duration,omitempty"`

	Tags    []string `json:"tags,omitempty"`
	ImageID string   `json:"image_id,omitempty"`
	// Commit is the dist-git commit of an OSBS build.
	Commit string `json:"commit,omitempty"`

	// Modules lists the installed modules in installation order.
	Modules   []ManifestModule   `json:"modules,omitempty"`
	Artifacts []ManifestArtifact `json:"artifacts,omitempty"`
	Builders  []string           `json:"builders,omitempty"`

	// DryRun marks a record of a generated context that was not built.
	DryRun bool `json:"dry_run,omitempty"`

	StratumVersion string `json:"stratum_version,omitempty"`
}

// ManifestModule is one installed module.
type ManifestModule struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ManifestArtifact is one artifact copied into the build context.
type ManifestArtifact struct {
	Name      string            `json:"name"`
	Target    string            `json:"target"`
	Checksums map[string]string `json:"checksums,omitempty"`
}

// NewBuildManifest records res and the build result. A nil build marks a
// dry run.
func NewBuildManifest(res *resolver.Result, build *Result, toolVersion string) *BuildManifest {
	img := res.Image
	m := &BuildManifest{
		Image:          img.Name,
		Version:        img.Version.String(),
		Timestamp:      time.Now().UTC(),
		StratumVersion: toolVersion,
		DryRun:         build == nil,
	}

	if build != nil {
		m.Engine = build.Engine
		m.Duration = build.Duration.Round(time.Millisecond).String()
		m.Tags = build.Tags
		m.ImageID = build.ImageID
		m.Commit = build.Commit
	}

	for _, im := range res.Modules {
		m.Modules = append(m.Modules, ManifestModule{Name: im.Module.Name, Version: im.Module.Version.String()})
	}
	for _, a := range img.Artifacts {
		m.Artifacts = append(m.Artifacts, ManifestArtifact{Name: a.Name, Target: a.Target, Checksums: a.Checksums()})
	}
	for _, b := range res.Builders {
		m.Builders = append(m.Builders, b.Name)
	}
	return m
}

// WriteManifest writes the build manifest to a JSON file
func WriteManifest(path string, manifest *BuildManifest) error {
	if path == "" {
		return &errors.InternalError{Msg: "manifest path cannot be empty"}
	}
	if manifest == nil {
		return &errors.InternalError{Msg: "manifest cannot be nil"}
	}

	if _, err := config.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap("marshal manifest", path, err)
	}

	if err := os.WriteFile(path, data, config.FilePermPrivate); err != nil {
		return errors.Wrap("write manifest", path, err)
	}
	return nil
}

// ReadManifest reads a build manifest from a JSON file
func ReadManifest(path string) (*BuildManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap("read manifest", path, err)
	}

	var manifest BuildManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrap("parse manifest", path, err)
	}
	return &manifest, nil
}
