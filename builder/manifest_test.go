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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/resolver"
)

func testResolution() *resolver.Result {
	jdk := &descriptor.Module{Image: descriptor.Image{Name: "jdk", Version: "11"}}
	return &resolver.Result{
		Image: &descriptor.Image{
			Name:    "test-app",
			Version: "1.0.0",
			Artifacts: []*descriptor.Resource{
				{Name: "app.jar", Target: "app.jar", SHA256: "ABC123"},
			},
		},
		Modules:  []*resolver.InstalledModule{{Module: jdk, Dir: "/modules/jdk"}},
		Builders: []*descriptor.Image{{Name: "build", Version: "1"}},
	}
}

func TestNewBuildManifest(t *testing.T) {
	build := &Result{
		Engine:   Podman,
		Tags:     []string{"test-app:1.0.0", "test-app:latest"},
		ImageID:  "sha256:abc123",
		Duration: 5*time.Minute + 45*time.Second,
	}

	manifest := NewBuildManifest(testResolution(), build, "1.2.3")

	assert.Equal(t, "test-app", manifest.Image)
	assert.Equal(t, "1.0.0", manifest.Version)
	assert.Equal(t, Podman, manifest.Engine)
	assert.Equal(t, "5m45s", manifest.Duration)
	assert.Equal(t, "sha256:abc123", manifest.ImageID)
	assert.Equal(t, "1.2.3", manifest.StratumVersion)
	assert.False(t, manifest.DryRun)

	require.Len(t, manifest.Modules, 1)
	assert.Equal(t, ManifestModule{Name: "jdk", Version: "11"}, manifest.Modules[0])

	require.Len(t, manifest.Artifacts, 1)
	assert.Equal(t, "abc123", manifest.Artifacts[0].Checksums["sha256"])
	assert.Equal(t, []string{"build"}, manifest.Builders)
}

func TestNewBuildManifestDryRun(t *testing.T) {
	manifest := NewBuildManifest(testResolution(), nil, "")

	assert.True(t, manifest.DryRun)
	assert.Empty(t, manifest.Engine)
	assert.Empty(t, manifest.Duration)
}

func TestWriteAndReadManifest(t *testing.T) {
	tmpDir := t.TempDir()
	manifestPath := filepath.Join(tmpDir, ManifestFile)

	original := &BuildManifest{
		Image:          "test-app",
		Version:        "1.2.3",
		Engine:         OSBS,
		Timestamp:      time.Now().UTC().Truncate(time.Millisecond),
		Duration:       "5m30s",
		Commit:         "0123456789abcdef",
		StratumVersion: "dev",
		Modules:        []ManifestModule{{Name: "jdk", Version: "17"}},
	}

	require.NoError(t, WriteManifest(manifestPath, original))

	info, err := os.Stat(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := ReadManifest(manifestPath)
	require.NoError(t, err)
	assert.True(t, original.Timestamp.Equal(loaded.Timestamp))
	loaded.Timestamp = original.Timestamp
	assert.Equal(t, original, loaded)
}

func TestWriteManifestCreatesDirectory(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), "nested", "dir", ManifestFile)

	require.NoError(t, WriteManifest(manifestPath, &BuildManifest{Image: "test", Version: "1.0.0"}))
	assert.FileExists(t, manifestPath)
}

func TestWriteManifestInvalidInput(t *testing.T) {
	assert.Error(t, WriteManifest("", &BuildManifest{}))
	assert.Error(t, WriteManifest(filepath.Join(t.TempDir(), ManifestFile), nil))
}

func TestReadManifestNotFound(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read manifest")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadManifestInvalidJSON(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(manifestPath, []byte("not valid json"), 0o644))

	_, err := ReadManifest(manifestPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse manifest")
}
