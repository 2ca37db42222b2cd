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

package resource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cowdogmoo/stratum/checksum"
	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/git"
	"github.com/cowdogmoo/stratum/logging"
)

// PathResource is a file or directory on the local filesystem.
type PathResource struct{ base }

// Source returns the absolute source path.
func (p *PathResource) Source() string {
	src := config.ExpandPath(p.d.Path)
	if !filepath.IsAbs(src) && p.opts.BaseDir != "" {
		src = filepath.Join(p.opts.BaseDir, src)
	}
	if abs, err := filepath.Abs(src); err == nil {
		return abs
	}
	return src
}

func (p *PathResource) Fetch(ctx context.Context, dest string) error {
	src := p.Source()
	if _, err := os.Stat(src); err != nil {
		if !os.IsNotExist(err) || p.opts.CacheURL == "" {
			return errors.Wrap("read local artifact", src, err)
		}
		proxy, ok := proxyURL(p.opts.CacheURL, filepath.Base(src), p.d.Checksums())
		if !ok {
			return errors.Wrap("read local artifact", src, err)
		}
		logging.InfoContext(ctx, "Local artifact %s not found, trying the cache proxy", src)
		return download(ctx, p.opts.HTTPClient, proxy, dest)
	}

	logging.DebugContext(ctx, "Copying %s to %s", src, dest)
	return copyPath(src, dest)
}

func (p *PathResource) Copy(ctx context.Context, targetDir string) (string, error) {
	return p.copyTo(ctx, p, targetDir)
}

// URLResource is downloaded over http(s) or read from a file:// URL.
type URLResource struct{ base }

func (u *URLResource) Fetch(ctx context.Context, dest string) error {
	if proxy, ok := proxyURL(u.opts.CacheURL, urlFilename(u.d.URL), u.d.Checksums()); ok {
		err := download(ctx, u.opts.HTTPClient, proxy, dest)
		if err == nil {
			return nil
		}
		logging.WarnContext(ctx, "Could not fetch %s through the cache proxy, using %s: %v",
			u.Name(), logging.RedactURL(u.d.URL), err)
	}
	return download(ctx, u.opts.HTTPClient, u.d.URL, dest)
}

func (u *URLResource) Copy(ctx context.Context, targetDir string) (string, error) {
	return u.copyTo(ctx, u, targetDir)
}

// GitResource is a shallow clone of a repository ref.
type GitResource struct{ base }

func (g *GitResource) Fetch(ctx context.Context, dest string) error {
	_, err := git.Clone(ctx, dest, git.CloneOptions{
		URL:   g.d.Git.URL,
		Ref:   g.d.Git.Ref,
		Depth: 1,
	})
	return err
}

func (g *GitResource) Copy(ctx context.Context, targetDir string) (string, error) {
	return g.copyTo(ctx, g, targetDir)
}

// PlainResource is known only by name and checksum and can only come
// from the cache or the cache proxy.
type PlainResource struct{ base }

func (p *PlainResource) Fetch(ctx context.Context, dest string) error {
	proxy, ok := proxyURL(p.opts.CacheURL, p.Name(), p.d.Checksums())
	if !ok {
		return errors.New("resource is identified only by checksum and no cache URL is configured")
	}
	return download(ctx, p.opts.HTTPClient, proxy, dest)
}

func (p *PlainResource) Copy(ctx context.Context, targetDir string) (string, error) {
	return p.copyTo(ctx, p, targetDir)
}

// proxyURL fills the cache-proxy template for a file. It reports false
// when there is no template or the template needs a checksum the
// resource does not declare.
func proxyURL(template, filename string, sums map[string]string) (string, bool) {
	if template == "" {
		return "", false
	}
	alg, hash, ok := checksum.Pick(sums)
	if !ok && (strings.Contains(template, "#algorithm#") || strings.Contains(template, "#hash#")) {
		return "", false
	}
	r := strings.NewReplacer(
		"#filename#", url.PathEscape(filename),
		"#algorithm#", alg,
		"#hash#", hash,
	)
	return r.Replace(template), true
}

func urlFilename(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(raw)
}

// download writes the body of rawURL to dest. file:// URLs are copied
// from the local filesystem.
func download(ctx context.Context, client *http.Client, rawURL, dest string) error {
	redacted := logging.RedactURL(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap("parse URL", redacted, err)
	}

	switch u.Scheme {
	case "file":
		logging.DebugContext(ctx, "Copying %s to %s", redacted, dest)
		return copyPath(u.Path, dest)
	case "http", "https":
	default:
		return errors.Wrap("download", redacted, fmt.Errorf("unsupported URL scheme %q", u.Scheme))
	}

	logging.InfoContext(ctx, "Downloading %s", redacted)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap("create request", redacted, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap("download", redacted, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrap("download", redacted, fmt.Errorf("unexpected status %s", resp.Status))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return errors.Wrap("create download file", dest, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return errors.Wrap("download", redacted, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap("write download", dest, err)
	}
	if err := os.Chmod(tmp.Name(), config.FilePermReadWrite); err != nil {
		return errors.Wrap("set download permissions", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return errors.Wrap("move download into place", dest, err)
	}
	return nil
}
