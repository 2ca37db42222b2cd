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

// Package errors provides error wrapping utilities and the typed error kinds
// surfaced by descriptor resolution, the artifact cache and resource fetching.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Wrap wraps an error with a descriptive action and optional detail.
// It returns a formatted error in the form "failed to <action> [(<detail>)]: <error>".
//
// Example usage:
//
//	if err := c.Add(ctx, r); err != nil {
//	    return errors.Wrap("cache artifact", r.Name(), err)
//	}
func Wrap(action, detail string, err error) error {
	if err == nil {
		return nil
	}

	if detail != "" {
		return fmt.Errorf("failed to %s (%s): %w", action, detail, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// New, Is, As and Join forward to the standard library so callers only need
// to import this package.
func New(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// ValidationError reports a descriptor that failed schema or structural
// checks. Kind names the descriptor type (Image, Module, Resource, ...).
type ValidationError struct {
	Kind     string
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("invalid %s descriptor", e.Kind)
	}
	return fmt.Sprintf("invalid %s descriptor: %s", e.Kind, strings.Join(e.Problems, "; "))
}

// NewValidation is a shorthand for a ValidationError with formatted problems.
func NewValidation(kind string, problems ...string) *ValidationError {
	return &ValidationError{Kind: kind, Problems: problems}
}

// NotFoundError reports a missing module, module version or cache entry.
// Available lists what does exist so the user can correct the reference.
type NotFoundError struct {
	What      string
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.What, e.Name)
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(", available: %s", strings.Join(e.Available, ", "))
	}
	return msg
}

// ConflictError reports two non-identical definitions claiming one identity.
type ConflictError struct {
	What   string
	Name   string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("conflicting definitions of %s %q", e.What, e.Name)
	}
	return fmt.Sprintf("conflicting definitions of %s %q: %s", e.What, e.Name, e.Reason)
}

// IntegrityError reports a checksum mismatch on a fetched or cached file.
type IntegrityError struct {
	Path      string
	Algorithm string
	Expected  string
	Actual    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s checksum mismatch for %s: expected %s, got %s",
		e.Algorithm, e.Path, e.Expected, e.Actual)
}

// ResourceError wraps any failure to fetch a resource together with the
// remediation text shown to the user.
type ResourceError struct {
	Name        string
	Target      string
	Description string
	Err         error
}

func (e *ResourceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "could not fetch resource %q", e.Name)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Target != "" {
		fmt.Fprintf(&b, "; place the artifact manually at %s", e.Target)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, " (%s)", e.Description)
	}
	return b.String()
}

func (e *ResourceError) Unwrap() error { return e.Err }

// MergeError reports a structurally invalid merge request.
type MergeError struct {
	Field  string
	Reason string
}

func (e *MergeError) Error() string {
	if e.Field == "" {
		return "cannot merge descriptors: " + e.Reason
	}
	return fmt.Sprintf("cannot merge field %q: %s", e.Field, e.Reason)
}

// InternalError marks an invariant violation that upstream validation
// should have made unreachable.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Msg + " (please report this as a bug)"
}

// Kind returns a short classification of err used for exit status and
// terse CLI output. Unclassified errors report "error".
func Kind(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		ie *IntegrityError
		re *ResourceError
		me *MergeError
		in *InternalError
	)
	switch {
	case err == nil:
		return ""
	case stderrors.As(err, &ie):
		return "integrity"
	case stderrors.As(err, &re):
		return "resource"
	case stderrors.As(err, &ve):
		return "validation"
	case stderrors.As(err, &nf):
		return "not-found"
	case stderrors.As(err, &ce):
		return "conflict"
	case stderrors.As(err, &me):
		return "merge"
	case stderrors.As(err, &in):
		return "internal"
	default:
		return "error"
	}
}
