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

// Package main writes the JSON schema of every descriptor kind to disk.
// The generated files enable IDE autocompletion and validation for
// image.yaml, module.yaml and override files.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
)

var output = pflag.StringP("output", "o", "schema", "Output directory for the JSON schemas")

func main() {
	pflag.Parse()

	written, err := run(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, p := range written {
		fmt.Printf("✓ Generated JSON schema: %s\n", p)
	}
}

// run writes <kind>.json for each descriptor kind into dir and returns the
// written paths.
func run(dir string) ([]string, error) {
	if _, err := config.EnsureDir(dir); err != nil {
		return nil, err
	}

	var written []string
	for _, kind := range descriptor.Kinds() {
		data, err := descriptor.Schema(kind)
		if err != nil {
			return written, err
		}
		// Trailing newline keeps end-of-file-fixer quiet.
		data = append(data, '\n')

		p := filepath.Join(dir, strings.ToLower(kind)+".json")
		if err := os.WriteFile(p, data, config.FilePermReadWrite); err != nil {
			return written, errors.Wrap("write schema", p, err)
		}
		written = append(written, p)
	}
	return written, nil
}
