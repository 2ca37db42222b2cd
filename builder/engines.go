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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/distribution/reference"

	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
)

// DefaultFile is the build file name used when a request names none.
const DefaultFile = "Containerfile"

// localEngine drives docker, buildah and podman. Their build commands
// share flags, so one implementation serves all three.
type localEngine struct {
	name   string
	runner Runner
	args   []string
	squash bool
}

func (e *localEngine) Name() string { return e.name }

func (e *localEngine) Build(ctx context.Context, req Request) (*Result, error) {
	tags, err := Tags(req)
	if err != nil {
		return nil, err
	}

	iid, err := os.CreateTemp("", "stratum-iid-*")
	if err != nil {
		return nil, errors.Wrap("create image id file", "", err)
	}
	iidPath := iid.Name()
	_ = iid.Close()
	defer func() { _ = os.Remove(iidPath) }()

	cmd := Command{
		Dir:  req.ContextDir,
		Name: e.name,
		Args: e.buildArgs(req, tags, iidPath),
	}

	start := time.Now()
	if err := run(ctx, e.runner, cmd); err != nil {
		return nil, errors.Wrap("build image with", e.name, err)
	}

	res := &Result{Engine: e.name, Tags: tags, Duration: time.Since(start)}
	if data, err := os.ReadFile(iidPath); err == nil {
		res.ImageID = strings.TrimSpace(string(data))
	}
	logging.InfoContext(ctx, "Built %s with %s in %s", strings.Join(tags, ", "), e.name, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (e *localEngine) buildArgs(req Request, tags []string, iidPath string) []string {
	file := req.File
	if file == "" {
		file = DefaultFile
	}

	args := []string{"build", "--file", filepath.Join(req.ContextDir, file), "--iidfile", iidPath}
	if e.squash && !req.NoSquash {
		args = append(args, "--squash")
	}
	if req.Pull {
		args = append(args, "--pull")
	}
	for _, t := range tags {
		args = append(args, "--tag", t)
	}
	args = append(args, e.args...)
	return append(args, req.ContextDir)
}

// Tags returns the validated tags of req: its explicit tags, or
// name:version and name:latest of the image.
func Tags(req Request) ([]string, error) {
	tags := req.Tags
	if len(tags) == 0 {
		if req.Image == nil || req.Image.Name == "" {
			return nil, errors.NewValidation("Engine", "no tags given and no image name to derive them from")
		}
		tags = []string{req.Image.Name + ":" + req.Image.Version.String(), req.Image.Name + ":latest"}
	}

	out := make([]string, 0, len(tags))
	var problems []string
	for _, t := range tags {
		if _, err := reference.ParseNormalizedNamed(t); err != nil {
			problems = append(problems, "invalid tag "+t+": "+err.Error())
			continue
		}
		out = append(out, t)
	}
	if len(problems) > 0 {
		return nil, errors.NewValidation("Engine", problems...)
	}
	return out, nil
}
