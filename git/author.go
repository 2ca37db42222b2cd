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

package git

import (
	"context"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/logging"
)

// Fallback identity used when no git configuration names the user.
const (
	DefaultAuthorName  = "stratum"
	DefaultAuthorEmail = "stratum@localhost"
)

// Author is a commit identity.
type Author struct {
	Name  string
	Email string
}

func (a Author) String() string {
	return a.Name + " <" + a.Email + ">"
}

// ConfigReader reads the user identity from ~/.gitconfig, following one
// level of [include] path.
type ConfigReader struct {
	// Home overrides the home directory; empty uses os.UserHomeDir.
	Home string
}

// NewConfigReader creates a reader for the current user's git config.
func NewConfigReader() *ConfigReader {
	return &ConfigReader{}
}

// Author returns the configured identity. Missing parts fall back to
// DefaultAuthorName and DefaultAuthorEmail.
func (r *ConfigReader) Author(ctx context.Context) Author {
	name, email := r.lookup(ctx)
	if name == "" {
		name = DefaultAuthorName
	}
	if email == "" {
		email = DefaultAuthorEmail
	}
	return Author{Name: name, Email: email}
}

func (r *ConfigReader) lookup(ctx context.Context) (name, email string) {
	home := r.Home
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			logging.DebugContext(ctx, "Failed to get home directory: %v", err)
			return "", ""
		}
	}

	cfg, err := ini.Load(filepath.Join(home, ".gitconfig"))
	if err != nil {
		logging.DebugContext(ctx, "Failed to load .gitconfig: %v", err)
		return "", ""
	}
	name, email = userInfo(cfg)
	if name != "" && email != "" {
		return name, email
	}

	include := cfg.Section("include").Key("path").String()
	if include == "" {
		return name, email
	}
	include = config.ExpandPath(include)
	if !filepath.IsAbs(include) {
		include = filepath.Join(home, include)
	}

	included, err := ini.Load(include)
	if err != nil {
		logging.DebugContext(ctx, "Failed to load included config from %s: %v", include, err)
		return name, email
	}
	iname, iemail := userInfo(included)
	if name == "" {
		name = iname
	}
	if email == "" {
		email = iemail
	}
	return name, email
}

func userInfo(cfg *ini.File) (name, email string) {
	user := cfg.Section("user")
	return user.Key("name").String(), user.Key("email").String()
}
