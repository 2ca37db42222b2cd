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

package module

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
)

// Discover walks root for module.yaml files, loads each one and registers
// it in reg. It returns the number of modules found. Hidden directories
// are not descended into.
func Discover(ctx context.Context, root string, reg *Registry, v descriptor.Validator) (int, error) {
	logging.DebugContext(ctx, "Discovering modules under %s", root)

	found := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != descriptor.ModuleFileName {
			return nil
		}

		m, err := descriptor.LoadModule(path, v)
		if err != nil {
			return err
		}
		if err := reg.Add(ctx, m); err != nil {
			return errors.Wrap("register module", path, err)
		}
		found++
		return nil
	})
	if err != nil {
		return found, errors.Wrap("discover modules", root, err)
	}

	logging.DebugContext(ctx, "Found %d module(s) under %s", found, root)
	return found, nil
}
