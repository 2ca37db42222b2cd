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
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/stratum/cache"
	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
)

const (
	helloMD5    = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	helloSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
)

// countingServer serves body for every path and counts requests.
func countingServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	return c
}

func TestNew_Variants(t *testing.T) {
	tests := []struct {
		name string
		d    *descriptor.Resource
		want any
	}{
		{name: "path", d: &descriptor.Resource{Path: "a.txt"}, want: &PathResource{}},
		{name: "url", d: &descriptor.Resource{URL: "https://example.com/a.tar.gz"}, want: &URLResource{}},
		{name: "git", d: &descriptor.Resource{Git: &descriptor.GitRef{URL: "https://example.com/repo.git", Ref: "main"}}, want: &GitResource{}},
		{name: "plain", d: &descriptor.Resource{Name: "jolokia.jar", MD5: helloMD5}, want: &PlainResource{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := New(tc.d, Options{})
			require.NoError(t, err)
			assert.IsType(t, tc.want, r)
		})
	}

	t.Run("ambiguous", func(t *testing.T) {
		_, err := New(&descriptor.Resource{Path: "a", URL: "https://example.com/a"}, Options{})
		var ve *errors.ValidationError
		assert.ErrorAs(t, err, &ve)
	})
}

func TestNew_TargetNames(t *testing.T) {
	r, err := New(&descriptor.Resource{Git: &descriptor.GitRef{URL: "https://example.com/org/repo.git", Ref: "v1.0"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "repo-v1.0", r.TargetName())

	r, err = New(&descriptor.Resource{URL: "https://example.com/dl/app.tar.gz?x=1"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "app.tar.gz", r.TargetName())

	r, err = New(&descriptor.Resource{Name: "lib/app.jar", Path: "build/app.jar"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "app.jar", r.TargetName())

	r, err = New(&descriptor.Resource{Path: "a.jar", Target: "renamed.jar"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "renamed.jar", r.TargetName())
}

func TestURLResource_CopyIsIdempotent(t *testing.T) {
	srv, hits := countingServer(t, "hello world")
	ctx := context.Background()

	for _, withCache := range []bool{false, true} {
		hits.Store(0)
		opts := Options{}
		if withCache {
			opts.Cache = newCache(t)
		}
		r, err := New(&descriptor.Resource{URL: srv.URL + "/hello.txt", MD5: helloMD5}, opts)
		require.NoError(t, err)

		dir := t.TempDir()
		first, err := r.Copy(ctx, dir)
		require.NoError(t, err)
		second, err := r.Copy(ctx, dir)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, filepath.Join(dir, "hello.txt"), first)
		assert.Equal(t, int32(1), hits.Load(), "cache=%v", withCache)

		data, err := os.ReadFile(first)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
	}
}

func TestURLResource_CacheHit(t *testing.T) {
	srv, hits := countingServer(t, "hello world")
	ctx := context.Background()
	c := newCache(t)

	r, err := New(&descriptor.Resource{URL: srv.URL + "/hello.txt", SHA256: helloSHA256}, Options{Cache: c})
	require.NoError(t, err)

	_, err = r.Copy(ctx, t.TempDir())
	require.NoError(t, err)
	assert.True(t, c.IsCached(r))

	_, err = r.Copy(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestURLResource_IntegrityMismatch(t *testing.T) {
	srv, _ := countingServer(t, "not hello")
	ctx := context.Background()

	for _, withCache := range []bool{false, true} {
		opts := Options{}
		if withCache {
			opts.Cache = newCache(t)
		}
		r, err := New(&descriptor.Resource{URL: srv.URL + "/hello.txt", MD5: helloMD5}, opts)
		require.NoError(t, err)

		dir := t.TempDir()
		_, err = r.Copy(ctx, dir)
		var ie *errors.IntegrityError
		require.ErrorAs(t, err, &ie, "cache=%v", withCache)
		assert.NoFileExists(t, filepath.Join(dir, "hello.txt"))
	}
}

func TestURLResource_SkipIntegrity(t *testing.T) {
	srv, _ := countingServer(t, "not hello")
	r, err := New(&descriptor.Resource{URL: srv.URL + "/hello.txt", MD5: helloMD5}, Options{Cache: newCache(t), SkipIntegrity: true})
	require.NoError(t, err)

	path, err := r.Copy(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestURLResource_NoChecksumSkipsCache(t *testing.T) {
	srv, hits := countingServer(t, "hello world")
	c := newCache(t)
	r, err := New(&descriptor.Resource{URL: srv.URL + "/hello.txt"}, Options{Cache: c})
	require.NoError(t, err)

	_, err = r.Copy(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	entries, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestURLResource_CacheProxy(t *testing.T) {
	var proxied atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied.Add(1)
		if r.URL.Query().Get("md5") != helloMD5 || r.URL.Query().Get("name") != "hello.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("hello world"))
	}))
	t.Cleanup(proxy.Close)
	origin, originHits := countingServer(t, "hello world")
	template := proxy.URL + "/fetch?name=#filename#&#algorithm#=#hash#"

	t.Run("served by proxy", func(t *testing.T) {
		r, err := New(&descriptor.Resource{URL: origin.URL + "/hello.txt", MD5: helloMD5}, Options{CacheURL: template})
		require.NoError(t, err)
		_, err = r.Copy(context.Background(), t.TempDir())
		require.NoError(t, err)
		assert.Zero(t, originHits.Load())
	})

	t.Run("falls back to literal URL", func(t *testing.T) {
		r, err := New(&descriptor.Resource{URL: origin.URL + "/other.txt", MD5: helloMD5}, Options{CacheURL: template})
		require.NoError(t, err)
		_, err = r.Copy(context.Background(), t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, int32(1), originHits.Load())
	})
}

func TestURLResource_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	r, err := New(&descriptor.Resource{
		URL:         srv.URL + "/missing.zip",
		Description: "download it from the vendor portal",
	}, Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = r.Copy(context.Background(), dir)
	var re *errors.ResourceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, filepath.Join(dir, "missing.zip"), re.Target)
	assert.Contains(t, err.Error(), "download it from the vendor portal")
	assert.Contains(t, err.Error(), "404")
}

func TestURLResource_FileScheme(t *testing.T) {
	src := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))

	r, err := New(&descriptor.Resource{URL: "file://" + src, SHA256: helloSHA256}, Options{})
	require.NoError(t, err)
	path, err := r.Copy(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestPathResource(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "hello.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "tree", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "tree", "sub", "f"), []byte("x"), 0o644))
	ctx := context.Background()

	t.Run("relative file", func(t *testing.T) {
		r, err := New(&descriptor.Resource{Path: "hello.txt", MD5: helloMD5}, Options{BaseDir: base, Cache: newCache(t)})
		require.NoError(t, err)
		path, err := r.Copy(ctx, t.TempDir())
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
	})

	t.Run("directory with checksum is trusted", func(t *testing.T) {
		r, err := New(&descriptor.Resource{Path: "tree", MD5: helloMD5}, Options{BaseDir: base, Cache: newCache(t)})
		require.NoError(t, err)
		path, err := r.Copy(ctx, t.TempDir())
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(path, "sub", "f"))
	})

	t.Run("missing", func(t *testing.T) {
		r, err := New(&descriptor.Resource{Path: "nope.txt"}, Options{BaseDir: base})
		require.NoError(t, err)
		_, err = r.Copy(ctx, t.TempDir())
		var re *errors.ResourceError
		assert.ErrorAs(t, err, &re)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing falls back to proxy", func(t *testing.T) {
		srv, hits := countingServer(t, "hello world")
		r, err := New(&descriptor.Resource{Path: "gone.txt", MD5: helloMD5}, Options{BaseDir: base, CacheURL: srv.URL + "/#algorithm#/#hash#"})
		require.NoError(t, err)
		_, err = r.Copy(ctx, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, int32(1), hits.Load())
	})
}

func TestPlainResource(t *testing.T) {
	ctx := context.Background()

	t.Run("without proxy", func(t *testing.T) {
		r, err := New(&descriptor.Resource{Name: "hello.txt", MD5: helloMD5}, Options{})
		require.NoError(t, err)
		_, err = r.Copy(ctx, t.TempDir())
		var re *errors.ResourceError
		require.ErrorAs(t, err, &re)
		assert.Contains(t, err.Error(), "place the artifact manually")
	})

	t.Run("already cached", func(t *testing.T) {
		c := newCache(t)
		seed, err := New(&descriptor.Resource{Path: "x", MD5: helloMD5}, Options{})
		require.NoError(t, err)
		src := filepath.Join(t.TempDir(), "x")
		require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))
		seed.Descriptor().Path = src
		_, err = c.Add(ctx, seed)
		require.NoError(t, err)

		r, err := New(&descriptor.Resource{Name: "hello.txt", MD5: helloMD5}, Options{Cache: c})
		require.NoError(t, err)
		path, err := r.Copy(ctx, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "hello.txt", filepath.Base(path))
	})

	t.Run("through proxy", func(t *testing.T) {
		srv, _ := countingServer(t, "hello world")
		r, err := New(&descriptor.Resource{Name: "hello.txt", MD5: helloMD5}, Options{CacheURL: srv.URL + "/#hash#"})
		require.NoError(t, err)
		_, err = r.Copy(ctx, t.TempDir())
		require.NoError(t, err)
	})
}

func TestProxyURL(t *testing.T) {
	sums := map[string]string{"md5": helloMD5, "sha256": helloSHA256}

	got, ok := proxyURL("https://cache/#filename#?#algorithm#=#hash#", "my file.jar", sums)
	require.True(t, ok)
	assert.Equal(t, "https://cache/my%20file.jar?sha256="+helloSHA256, got)

	_, ok = proxyURL("", "a", sums)
	assert.False(t, ok)

	_, ok = proxyURL("https://cache/#hash#", "a", nil)
	assert.False(t, ok)

	got, ok = proxyURL("https://cache/#filename#", "a", nil)
	require.True(t, ok)
	assert.Equal(t, "https://cache/a", got)
}

func TestGitResource(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary is required for local clones")
	}

	origin := filepath.Join(t.TempDir(), "modules")
	repo, err := gogit.PlainInit(origin, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(origin, "module.yaml"), []byte("name: m\nversion: 1\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("module.yaml")
	require.NoError(t, err)
	_, err = wt.Commit("init", &gogit.CommitOptions{Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()}})
	require.NoError(t, err)

	r, err := New(&descriptor.Resource{Git: &descriptor.GitRef{URL: origin, Ref: "master"}}, Options{Cache: newCache(t)})
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := r.Copy(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "modules-master"), path)
	assert.FileExists(t, filepath.Join(path, "module.yaml"))
}

func TestCacheable(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "hello.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "tree"), 0o755))

	tests := []struct {
		name string
		d    *descriptor.Resource
		want bool
	}{
		{name: "file path", d: &descriptor.Resource{Path: "hello.txt", MD5: helloMD5}, want: true},
		{name: "missing path", d: &descriptor.Resource{Path: "gone.txt", MD5: helloMD5}, want: true},
		{name: "directory path", d: &descriptor.Resource{Path: "tree", MD5: helloMD5}, want: false},
		{name: "url", d: &descriptor.Resource{URL: "https://example.com/a.jar", MD5: helloMD5}, want: true},
		{name: "git", d: &descriptor.Resource{Git: &descriptor.GitRef{URL: "https://example.com/r.git", Ref: "main"}, MD5: helloMD5}, want: false},
		{name: "plain", d: &descriptor.Resource{Name: "a.jar", MD5: helloMD5}, want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := New(tc.d, Options{BaseDir: base})
			require.NoError(t, err)
			assert.Equal(t, tc.want, cacheable(r))
		})
	}
}

func TestPathResource_DirectoryWithChecksumBypassesCache(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "tree", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "tree", "sub", "f"), []byte("x"), 0o644))
	c := newCache(t)

	r, err := New(&descriptor.Resource{Path: "tree", MD5: helloMD5}, Options{BaseDir: base, Cache: c})
	require.NoError(t, err)
	path, err := r.Copy(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(path, "sub", "f"))

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir(), "cache holds a staged directory %s", e.Name())
	}
	idx, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, idx)
}
