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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the XDG variables at a fresh directory so no
// real user config leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_CONFIG_DIRS", filepath.Join(home, "etc"))
	t.Chdir(home)
	return home
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), DirPermReadWriteExec))
	require.NoError(t, os.WriteFile(path, []byte(body), FilePermReadWrite))
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "color", cfg.Log.Format)
	assert.Equal(t, filepath.Join(home, ".stratum"), cfg.Common.WorkDir)
	assert.Equal(t, filepath.Join(home, ".stratum", "cache"), cfg.CacheDir())
	assert.Equal(t, "docker", cfg.Build.Engine)
	assert.Equal(t, "target", cfg.Build.Target)
	assert.False(t, cfg.Integrity.Disabled)
}

func TestLoad_XDGConfigFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "stratum", "config.yaml"), `
log:
  level: debug
common:
  cache_url: "https://mirror.local/get?#algorithm#=#hash#"
build:
  engine: podman
  tags: [app:1.0, app:latest]
`)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "https://mirror.local/get?#algorithm#=#hash#", cfg.Common.CacheURL)
	assert.Equal(t, "podman", cfg.Build.Engine)
	assert.Equal(t, []string{"app:1.0", "app:latest"}, cfg.Build.Tags)
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, "config.yaml"), `
build:
  engine: buildah
  target: from-file
log:
  level: warn
`)
	t.Setenv("STRATUM_BUILD_ENGINE", "podman")
	t.Setenv("STRATUM_INTEGRITY_DISABLED", "true")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("target", "target", "")
	fs.String("log-level", "info", "")
	require.NoError(t, fs.Parse([]string{"--target", "from-flag"}))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.Build.Target, "flag beats file")
	assert.Equal(t, "podman", cfg.Build.Engine, "env beats file")
	assert.Equal(t, "warn", cfg.Log.Level, "unchanged flag does not beat file")
	assert.True(t, cfg.Integrity.Disabled)
}

func TestLoadFromPath(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	writeConfig(t, path, `
common:
  work_dir: ~/work
osbs:
  user: builder
  koji_target: rhel-9-containers
  nowait: true
`)

	cfg, err := LoadFromPath(path, nil)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "work"), cfg.Common.WorkDir)
	assert.Equal(t, "builder", cfg.OSBS.User)
	assert.Equal(t, "rhel-9-containers", cfg.OSBS.KojiTarget)
	assert.True(t, cfg.OSBS.Nowait)
}

func TestLoadFromPath_Missing(t *testing.T) {
	isolate(t)
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.False(t, IsNotFoundError(err))
}

func TestLoad_MalformedFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, "config.yaml"), "log: [unterminated")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}
