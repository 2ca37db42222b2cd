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

// Package resource materializes artifact descriptors into a build
// directory. Each descriptor kind has its own fetch method; the copy
// cascade shared by all of them checks the target first, then the local
// artifact cache, and fetches only when both miss.
package resource

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-cleanhttp"
	cp "github.com/otiai10/copy"

	"github.com/cowdogmoo/stratum/cache"
	"github.com/cowdogmoo/stratum/checksum"
	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
)

// Resource is a fetchable artifact.
type Resource interface {
	Name() string
	TargetName() string
	Description() string
	Checksums() map[string]string
	Descriptor() *descriptor.Resource
	// Fetch writes the artifact to dest without any caching or checks.
	Fetch(ctx context.Context, dest string) error
	// Copy makes sure a verified copy of the artifact exists in targetDir
	// and returns its path.
	Copy(ctx context.Context, targetDir string) (string, error)
}

// Options carries what the variants need besides their descriptor.
type Options struct {
	// BaseDir resolves relative path resources.
	BaseDir string
	// CacheURL is the cache-proxy URL template. The placeholders
	// #filename#, #algorithm# and #hash# are substituted per resource.
	CacheURL string
	// Cache is the local artifact cache; nil disables caching.
	Cache *cache.Cache
	// HTTPClient is used for downloads; nil uses a cleanhttp client.
	HTTPClient *http.Client
	// SkipIntegrity disables checksum verification and the cache.
	SkipIntegrity bool
}

// New builds the variant selected by d. d is normalized in place.
func New(d *descriptor.Resource, opts Options) (Resource, error) {
	if err := d.Normalize(); err != nil {
		return nil, err
	}
	kind, err := d.Kind()
	if err != nil {
		return nil, err
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = cleanhttp.DefaultClient()
	}

	b := base{d: d, opts: opts}
	switch kind {
	case descriptor.PathKind:
		return &PathResource{base: b}, nil
	case descriptor.URLKind:
		return &URLResource{base: b}, nil
	case descriptor.GitKind:
		return &GitResource{base: b}, nil
	case descriptor.PlainKind:
		return &PlainResource{base: b}, nil
	default:
		return nil, &errors.InternalError{Msg: "unhandled resource kind " + string(kind)}
	}
}

// NewAll builds resources for every descriptor in ds.
func NewAll(ds []*descriptor.Resource, opts Options) ([]Resource, error) {
	out := make([]Resource, 0, len(ds))
	for _, d := range ds {
		r, err := New(d, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type base struct {
	d    *descriptor.Resource
	opts Options
}

func (b *base) Name() string                     { return b.d.Name }
func (b *base) TargetName() string               { return b.d.Target }
func (b *base) Description() string              { return b.d.Description }
func (b *base) Descriptor() *descriptor.Resource { return b.d }

func (b *base) Checksums() map[string]string {
	if b.opts.SkipIntegrity {
		return nil
	}
	return b.d.Checksums()
}

// copyTo runs the copy cascade for self, which is the variant embedding b.
func (b *base) copyTo(ctx context.Context, self Resource, targetDir string) (string, error) {
	target := filepath.Join(targetDir, b.TargetName())
	sums := self.Checksums()

	if info, err := os.Stat(target); err == nil {
		if info.IsDir() || len(sums) == 0 {
			logging.DebugContext(ctx, "Resource %s already present at %s", b.Name(), target)
			return target, nil
		}
		if err := checksum.Check(target, sums); err == nil {
			logging.DebugContext(ctx, "Resource %s already present at %s and verified", b.Name(), target)
			return target, nil
		}
		logging.InfoContext(ctx, "Resource %s at %s does not match its checksum, fetching again", b.Name(), target)
		if err := os.RemoveAll(target); err != nil {
			return "", errors.Wrap("remove stale artifact", target, err)
		}
	}

	if _, err := config.EnsureDir(filepath.Dir(target)); err != nil {
		return "", errors.Wrap("create target directory", filepath.Dir(target), err)
	}

	if err := b.materialize(ctx, self, target, sums); err != nil {
		var ie *errors.IntegrityError
		if errors.As(err, &ie) {
			return "", err
		}
		return "", &errors.ResourceError{
			Name:        b.Name(),
			Target:      target,
			Description: b.Description(),
			Err:         err,
		}
	}

	if len(sums) > 0 {
		info, err := os.Stat(target)
		if err != nil {
			return "", errors.Wrap("stat artifact", target, err)
		}
		if !info.IsDir() {
			if err := checksum.Check(target, sums); err != nil {
				_ = os.Remove(target)
				return "", err
			}
		}
	}

	return target, nil
}

// materialize puts the artifact at target through the cache when one is
// configured and the resource is checksummed, otherwise by a direct fetch.
func (b *base) materialize(ctx context.Context, self Resource, target string, sums map[string]string) error {
	c := b.opts.Cache
	if c == nil || len(sums) == 0 || !cacheable(self) {
		return self.Fetch(ctx, target)
	}

	if e, err := c.Get(self); err == nil {
		logging.InfoContext(ctx, "Using cached artifact %s (%s)", b.Name(), e.ID)
		return copyPath(e.CachedPath, target)
	}

	id, err := c.Add(ctx, self)
	if err != nil {
		var ve *errors.ValidationError
		if errors.As(err, &ve) {
			logging.DebugContext(ctx, "Resource %s cannot be cached (%v), fetching directly", b.Name(), err)
			return self.Fetch(ctx, target)
		}
		return err
	}
	return copyPath(c.Path(id), target)
}

// cacheable reports whether r yields a single file the cache can hold.
// Git checkouts and local directories are always fetched directly.
func cacheable(r Resource) bool {
	switch v := r.(type) {
	case *GitResource:
		return false
	case *PathResource:
		info, err := os.Stat(v.Source())
		return err != nil || !info.IsDir()
	}
	return true
}

func copyPath(src, dest string) error {
	if err := cp.Copy(src, dest, cp.Options{PreserveTimes: true}); err != nil {
		return errors.Wrap("copy artifact", src, err)
	}
	return nil
}
