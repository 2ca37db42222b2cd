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
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
)

// recordingRunner records commands instead of running them. It answers
// --iidfile with imageID.
type recordingRunner struct {
	mu       sync.Mutex
	commands []Command
	imageID  string
	err      error
}

func (r *recordingRunner) Run(_ context.Context, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	if r.err != nil {
		return r.err
	}
	if i := slices.Index(cmd.Args, "--iidfile"); i >= 0 && r.imageID != "" {
		return os.WriteFile(cmd.Args[i+1], []byte(r.imageID+"\n"), 0o644)
	}
	return nil
}

func TestNew(t *testing.T) {
	for _, name := range Engines() {
		t.Run(name, func(t *testing.T) {
			eng, err := New(name, Options{Runner: &recordingRunner{}})
			require.NoError(t, err)
			assert.Equal(t, name, eng.Name())
			assert.True(t, IsEngine(name))
		})
	}

	_, err := New("kaniko", Options{})
	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "buildah, docker, osbs, podman")
	assert.False(t, IsEngine("kaniko"))

	_, err = New(Docker, Options{EngineArgs: `--label "unterminated`})
	require.ErrorAs(t, err, &ve)
}

func TestLocalEngineBuild(t *testing.T) {
	img := &descriptor.Image{Name: "app", Version: "1.0"}

	tests := []struct {
		name     string
		engine   string
		args     string
		req      Request
		wantArgs func(ctxDir, iid string) []string
	}{
		{
			name:   "docker default tags",
			engine: Docker,
			req:    Request{Image: img},
			wantArgs: func(dir, iid string) []string {
				return []string{"build", "--file", filepath.Join(dir, DefaultFile), "--iidfile", iid,
					"--tag", "app:1.0", "--tag", "app:latest", dir}
			},
		},
		{
			name:   "podman squashes and pulls",
			engine: Podman,
			args:   `--format docker --label "a=b c"`,
			req:    Request{Image: img, File: "Dockerfile", Pull: true, Tags: []string{"quay.io/org/app:1"}},
			wantArgs: func(dir, iid string) []string {
				return []string{"build", "--file", filepath.Join(dir, "Dockerfile"), "--iidfile", iid,
					"--squash", "--pull", "--tag", "quay.io/org/app:1", "--format", "docker", "--label", "a=b c", dir}
			},
		},
		{
			name:   "buildah without squash",
			engine: Buildah,
			req:    Request{Image: img, NoSquash: true},
			wantArgs: func(dir, iid string) []string {
				return []string{"build", "--file", filepath.Join(dir, DefaultFile), "--iidfile", iid,
					"--tag", "app:1.0", "--tag", "app:latest", dir}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &recordingRunner{imageID: "sha256:feed"}
			eng, err := New(tc.engine, Options{Runner: runner, EngineArgs: tc.args})
			require.NoError(t, err)

			tc.req.ContextDir = t.TempDir()
			res, err := eng.Build(context.Background(), tc.req)
			require.NoError(t, err)

			require.Len(t, runner.commands, 1)
			cmd := runner.commands[0]
			assert.Equal(t, tc.engine, cmd.Name)
			assert.Equal(t, tc.req.ContextDir, cmd.Dir)

			iid := cmd.Args[slices.Index(cmd.Args, "--iidfile")+1]
			assert.Equal(t, tc.wantArgs(tc.req.ContextDir, iid), cmd.Args)
			assert.NoFileExists(t, iid)

			assert.Equal(t, tc.engine, res.Engine)
			assert.Equal(t, "sha256:feed", res.ImageID)
		})
	}
}

func TestLocalEngineFailure(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 1")}
	eng, err := New(Docker, Options{Runner: runner})
	require.NoError(t, err)

	_, err = eng.Build(context.Background(), Request{ContextDir: t.TempDir(), Image: &descriptor.Image{Name: "app", Version: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build image with (docker)")
}

func TestTags(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		want    []string
		wantErr bool
	}{
		{
			name: "derived from image",
			req:  Request{Image: &descriptor.Image{Name: "org/app", Version: "1.10"}},
			want: []string{"org/app:1.10", "org/app:latest"},
		},
		{
			name: "explicit",
			req:  Request{Tags: []string{"registry.example.com:5000/app:v1", "app"}},
			want: []string{"registry.example.com:5000/app:v1", "app"},
		},
		{name: "uppercase repository", req: Request{Tags: []string{"App:1"}}, wantErr: true},
		{name: "bad tag", req: Request{Tags: []string{"app:bad tag"}}, wantErr: true},
		{name: "nothing to derive from", req: Request{}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Tags(tc.req)
			if tc.wantErr {
				var ve *errors.ValidationError
				require.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCommandString(t *testing.T) {
	cmd := Command{Name: "rhpkg", Args: []string{"--token=s3cret", "container-build"}}
	assert.Equal(t, "rhpkg --token=*** container-build", cmd.String())
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is required")
	}

	var out bytes.Buffer
	r := &ExecRunner{Stdout: &out, Stderr: &out}
	dir := t.TempDir()

	require.NoError(t, r.Run(context.Background(), Command{Dir: dir, Name: "sh", Args: []string{"-c", "pwd"}}))
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, out.String(), resolved)

	err = r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to run (sh)")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 5"}})
	assert.ErrorIs(t, err, context.Canceled)

	err = r.Run(context.Background(), Command{Name: "stratum-no-such-binary"})
	assert.ErrorIs(t, err, exec.ErrNotFound)
}
