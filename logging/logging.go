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

// Package logging provides the console logger used across stratum.
// Library code never holds a logger of its own: it is carried on the
// context and retrieved with FromContext or the *Context helpers.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level is the severity of a log message.
type Level int

// Levels ordered from least to most severe.
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Format selects how log lines are rendered.
type Format int

const (
	PlainFormat Format = iota
	ColorFormat
	JSONFormat
)

// ParseFormat maps a config string to a Format. Unknown values map to plain.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "color", "colour":
		return ColorFormat
	case "json":
		return JSONFormat
	default:
		return PlainFormat
	}
}

// Logger writes leveled messages to Writer and command results to Stdout.
type Logger struct {
	mu     sync.Mutex
	Level  Level
	Format Format
	Quiet  bool
	Writer io.Writer
	Stdout io.Writer
	now    func() time.Time
}

// New returns a logger at the given level writing plain lines to stderr.
func New(level Level) *Logger {
	return &Logger{
		Level:  level,
		Format: PlainFormat,
		Writer: os.Stderr,
		Stdout: os.Stdout,
		now:    time.Now,
	}
}

// Initialize builds the process logger from configuration values. Verbose
// lowers the level to debug; quiet suppresses everything below errors.
func Initialize(level, format string, quiet, verbose bool) *Logger {
	l := New(ParseLevel(level))
	l.Format = ParseFormat(format)
	l.Quiet = quiet
	if verbose {
		l.Level = DebugLevel
	}
	return l
}

func (l *Logger) enabled(level Level) bool {
	if l.Quiet {
		return level >= ErrorLevel
	}
	return level >= l.Level
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled(level) || l.Writer == nil {
		return
	}

	msg := fmt.Sprintf(format, args...)
	ts := l.clock().Format(time.RFC3339)

	var line string
	switch l.Format {
	case JSONFormat:
		b, err := json.Marshal(struct {
			Time  string `json:"time"`
			Level string `json:"level"`
			Msg   string `json:"msg"`
		}{ts, level.String(), msg})
		if err != nil {
			line = fmt.Sprintf("%s %s %s", ts, level, msg)
		} else {
			line = string(b)
		}
	case ColorFormat:
		line = fmt.Sprintf("%s %s", ts, colorize(level, msg))
	default:
		line = fmt.Sprintf("%s [%s] %s", ts, level, msg)
	}

	if _, err := fmt.Fprintln(l.Writer, line); err != nil {
		fmt.Fprintln(os.Stderr, line)
	}
}

func (l *Logger) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

func colorize(level Level, msg string) string {
	switch level {
	case DebugLevel:
		return color.HiBlackString("[DEBUG] %s", msg)
	case WarnLevel:
		return color.HiYellowString("[WARN] %s", msg)
	case ErrorLevel:
		return color.HiRedString("[ERROR] %s", msg)
	default:
		return color.HiGreenString("[INFO] %s", msg)
	}
}

func (l *Logger) Debug(format string, args ...any) { l.log(DebugLevel, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(InfoLevel, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(WarnLevel, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(ErrorLevel, format, args...) }

// Output writes a command result to Stdout. Strings and byte slices are
// written verbatim; other values are encoded as indented JSON.
func (l *Logger) Output(data any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.Stdout
	if w == nil {
		w = os.Stdout
	}

	switch v := data.(type) {
	case string:
		_, err := io.WriteString(w, v)
		return err
	case []byte:
		_, err := w.Write(v)
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying l.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx, or a fresh info-level
// logger if there is none.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*Logger); ok && l != nil {
			return l
		}
	}
	return New(InfoLevel)
}

func DebugContext(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Debug(format, args...)
}

func InfoContext(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Info(format, args...)
}

func WarnContext(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Warn(format, args...)
}

func ErrorContext(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Error(format, args...)
}

// OutputContext writes a command result through the logger in ctx.
func OutputContext(ctx context.Context, data any) error {
	return FromContext(ctx).Output(data)
}
