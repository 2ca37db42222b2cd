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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "stratum"
	mainPkg    = "./cmd/stratum"
	binDir     = "bin"
	schemaDir  = "schema"
)

// ldflags stamps version information into cmd/stratum.
func ldflags() string {
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || version == "" {
		version = "dev"
	}
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil || commit == "" {
		commit = "none"
	}
	date := time.Now().UTC().Format(time.RFC3339)

	vars := map[string]string{"version": version, "commit": commit, "date": date}
	flags := []string{"-s", "-w"}
	for k, v := range vars {
		flags = append(flags, fmt.Sprintf("-X main.%s=%s", k, v))
	}
	return strings.Join(flags, " ")
}

// Compile builds the stratum binary into bin/. GOOS and GOARCH default to
// the host platform.
//
// Example usage:
//
// ```go
// GOOS=linux GOARCH=arm64 mage compile
// ```
func Compile() error {
	goos := envOr("GOOS", runtime.GOOS)
	goarch := envOr("GOARCH", runtime.GOARCH)

	out := filepath.Join(binDir, binaryName)
	if goos != runtime.GOOS || goarch != runtime.GOARCH {
		out = filepath.Join(binDir, fmt.Sprintf("%s-%s-%s", binaryName, goos, goarch))
	}

	fmt.Println(color.YellowString("Compiling %s for %s/%s.", out, goos, goarch))
	env := map[string]string{"GOOS": goos, "GOARCH": goarch, "CGO_ENABLED": "0"}
	if err := sh.RunWithV(env, "go", "build", "-trimpath", "-ldflags", ldflags(), "-o", out, mainPkg); err != nil {
		return fmt.Errorf("failed to compile %s: %w", binaryName, err)
	}
	return nil
}

// RunTests executes all unit tests with the race detector.
func RunTests() error {
	fmt.Println(color.YellowString("Running unit tests."))
	if err := sh.RunV("go", "test", "-race", "-count=1", "./..."); err != nil {
		return fmt.Errorf("failed to run unit tests: %w", err)
	}
	return nil
}

// GenerateSchemas writes the descriptor JSON schemas to schema/.
func GenerateSchemas() error {
	fmt.Println(color.YellowString("Generating descriptor schemas."))
	if err := sh.RunV("go", "run", "./cmd/schema-gen", "-o", schemaDir); err != nil {
		return fmt.Errorf("failed to generate schemas: %w", err)
	}
	return nil
}

// RunPreCommit runs all pre-commit hooks locally.
func RunPreCommit() error {
	mg.Deps(GenerateSchemas)

	if _, err := sh.Output("pre-commit", "--version"); err != nil {
		return fmt.Errorf("pre-commit is not installed, please install it " +
			"with the following command: `python3 -m pip install pre-commit`")
	}

	fmt.Println(color.YellowString("Running all pre-commit hooks locally."))
	return sh.RunV("pre-commit", "run", "--all-files")
}

// Clean removes build output.
func Clean() error {
	fmt.Println(color.YellowString("Removing %s/.", binDir))
	return sh.Rm(binDir)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
