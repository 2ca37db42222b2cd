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

package cli

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cowdogmoo/stratum/builder"
	"github.com/cowdogmoo/stratum/errors"
)

// UsageError reports a command line that cannot be acted on. The command
// layer maps it to the usage exit status.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

func usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// digestLengths maps each checksum algorithm to its hex digest length.
var digestLengths = map[string]int{"md5": 32, "sha1": 40, "sha256": 64, "sha512": 128}

// Validator validates CLI input before passing to business logic.
type Validator struct{}

// NewValidator creates a new CLI validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateBuildOptions validates build command options for correctness and consistency.
func (v *Validator) ValidateBuildOptions(opts BuildCLIOptions) error {
	if err := v.validateInputs(opts); err != nil {
		return err
	}

	if err := v.validateEngine(opts); err != nil {
		return err
	}

	return v.validateOptionDependencies(opts)
}

func (v *Validator) validateInputs(opts BuildCLIOptions) error {
	if strings.TrimSpace(opts.Descriptor) == "" {
		return usagef("an image descriptor is required")
	}

	for i, o := range opts.Overrides {
		if strings.TrimSpace(o) == "" {
			return usagef("override #%d is empty", i+1)
		}
	}

	for _, label := range opts.Labels {
		if !ValidateKeyValueFormat(label) {
			return usagef("invalid label format: %s (expected key=value)", label)
		}
	}
	return nil
}

func (v *Validator) validateEngine(opts BuildCLIOptions) error {
	if !builder.IsEngine(opts.Engine) {
		return usagef("unknown build engine %q; choose one of %s", opts.Engine, strings.Join(builder.Engines(), ", "))
	}

	if len(opts.Tags) > 0 && opts.Engine != builder.OSBS {
		if _, err := builder.Tags(builder.Request{Tags: opts.Tags}); err != nil {
			var ve *errors.ValidationError
			if errors.As(err, &ve) {
				return usagef("%s", strings.Join(ve.Problems, "; "))
			}
			return err
		}
	}
	return nil
}

// validateOptionDependencies validates that dependent options are correctly specified.
func (v *Validator) validateOptionDependencies(opts BuildCLIOptions) error {
	if opts.Engine == builder.OSBS {
		if len(opts.Tags) > 0 {
			return usagef("--tag cannot be used with the osbs engine; OSBS assigns tags")
		}
		return nil
	}

	if opts.OSBS.Set() {
		return usagef("osbs options require the osbs engine")
	}
	return nil
}

// ValidateCacheAddOptions validates cache add command options.
func (v *Validator) ValidateCacheAddOptions(opts CacheAddOptions) error {
	if strings.TrimSpace(opts.Source) == "" {
		return usagef("a path or URL is required")
	}

	sums := opts.Checksums()
	if len(sums) == 0 {
		return usagef("at least one of --md5, --sha1, --sha256 or --sha512 is required")
	}

	for alg, value := range sums {
		if len(value) != digestLengths[alg] {
			return usagef("--%s must be %d hex characters, got %d", alg, digestLengths[alg], len(value))
		}
		if _, err := hex.DecodeString(value); err != nil {
			return usagef("--%s is not a hex digest: %s", alg, value)
		}
	}
	return nil
}
