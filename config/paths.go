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
	"runtime"
	"strings"
)

// File and directory modes used for everything stratum writes.
const (
	DirPermReadWriteExec  = 0o755
	FilePermReadWrite     = 0o644
	FilePermPrivate       = 0o600
	appName               = "stratum"
	defaultWorkDirName    = ".stratum"
	defaultConfigFileName = "config"
)

// ConfigHome returns $XDG_CONFIG_HOME or ~/.config.
func ConfigHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config")
	}
	return ""
}

// ConfigDirs lists the directories searched for config.yaml, highest
// priority first.
func ConfigDirs() []string {
	var dirs []string

	if h := ConfigHome(); h != "" {
		dirs = append(dirs, filepath.Join(h, appName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, defaultWorkDirName))
	}

	if runtime.GOOS == "linux" || runtime.GOOS == "freebsd" {
		if sys := os.Getenv("XDG_CONFIG_DIRS"); sys != "" {
			for _, d := range filepath.SplitList(sys) {
				if d != "" {
					dirs = append(dirs, filepath.Join(d, appName))
				}
			}
		} else {
			dirs = append(dirs, filepath.Join("/etc", "xdg", appName))
		}
	}

	return dirs
}

// DefaultWorkDir is ~/.stratum, or .stratum in the current directory when
// the home directory is unknown.
func DefaultWorkDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, defaultWorkDirName)
	}
	return defaultWorkDirName
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// EnsureDir creates dir and its parents and returns it.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, DirPermReadWriteExec); err != nil {
		return "", err
	}
	return dir, nil
}
