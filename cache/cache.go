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

// Package cache stores fetched artifacts under random identifiers and
// indexes them by checksum so later builds can skip the download.
//
// Layout of the cache directory:
//
//	index.yaml   id -> {names, cached_path, checksums}
//	index.lock   advisory lock held while the index is rewritten
//	<uuid>       artifact bytes
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/stratum/checksum"
	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
)

const (
	indexFile = "index.yaml"
	lockFile  = "index.lock"

	lockRetry = 50 * time.Millisecond
)

// Fetchable is what the cache needs from a resource: a name to record,
// the declared checksums and a way to write its bytes to a path.
type Fetchable interface {
	Name() string
	Checksums() map[string]string
	Fetch(ctx context.Context, dest string) error
}

// Entry is one cached artifact.
type Entry struct {
	ID         string            `yaml:"-" json:"id"`
	Names      []string          `yaml:"names" json:"names"`
	CachedPath string            `yaml:"cached_path" json:"cached_path"`
	Checksums  map[string]string `yaml:"checksums" json:"checksums"`
}

// matches reports whether every declared checksum agrees with the entry.
func (e *Entry) matches(declared map[string]string) bool {
	n := 0
	for alg, want := range declared {
		if !checksum.Supported(alg) {
			continue
		}
		got, ok := e.Checksums[alg]
		if !ok || got != want {
			return false
		}
		n++
	}
	return n > 0
}

// Cache is an artifact store rooted at a directory.
type Cache struct {
	dir string
}

// New opens the cache at dir, creating the directory if needed.
func New(dir string) (*Cache, error) {
	abs, err := config.EnsureDir(dir)
	if err != nil {
		return nil, errors.Wrap("create cache directory", dir, err)
	}
	return &Cache{dir: abs}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// Path returns where the artifact with id is stored.
func (c *Cache) Path(id string) string { return filepath.Join(c.dir, id) }

// Add fetches r into the cache and returns the entry id. The fetched file
// is verified against every checksum r declares and digests for the
// remaining algorithms are recorded too. When an entry with the same
// content already exists, r's name is added to it and its id returned.
func (c *Cache) Add(ctx context.Context, r Fetchable) (string, error) {
	declared := supported(r.Checksums())
	if len(declared) == 0 {
		return "", errors.NewValidation("Resource",
			fmt.Sprintf("resource %q declares no checksum and cannot be cached", r.Name()))
	}

	id := uuid.NewString()
	dest := c.Path(id)
	logging.DebugContext(ctx, "Fetching %s into cache as %s", r.Name(), id)

	if err := r.Fetch(ctx, dest); err != nil {
		_ = os.RemoveAll(dest)
		return "", err
	}

	info, err := os.Stat(dest)
	if err != nil {
		return "", errors.Wrap("stat cached artifact", dest, err)
	}
	if info.IsDir() {
		_ = os.RemoveAll(dest)
		return "", errors.NewValidation("Resource",
			fmt.Sprintf("resource %q is a directory and cannot be cached", r.Name()))
	}

	digests, err := checksum.DigestAll(dest, checksum.Algorithms...)
	if err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	for _, alg := range checksum.Declared(declared) {
		if digests[alg] != declared[alg] {
			_ = os.Remove(dest)
			return "", &errors.IntegrityError{
				Path:      r.Name(),
				Algorithm: alg,
				Expected:  declared[alg],
				Actual:    digests[alg],
			}
		}
	}

	err = c.update(ctx, func(idx map[string]*Entry) error {
		for existingID, e := range idx {
			if e.matches(digests) {
				if !slices.Contains(e.Names, r.Name()) {
					e.Names = append(e.Names, r.Name())
				}
				_ = os.Remove(dest)
				logging.DebugContext(ctx, "Artifact %s already cached as %s", r.Name(), existingID)
				id = existingID
				return nil
			}
		}
		idx[id] = &Entry{
			Names:      []string{r.Name()},
			CachedPath: dest,
			Checksums:  digests,
		}
		return nil
	})
	if err != nil {
		_ = os.Remove(dest)
		return "", err
	}

	logging.InfoContext(ctx, "Cached artifact %s as %s", r.Name(), id)
	return id, nil
}

// Get returns the entry whose recorded digests agree with every checksum r
// declares. A missing entry is a NotFoundError.
func (c *Cache) Get(r Fetchable) (*Entry, error) {
	declared := supported(r.Checksums())
	if len(declared) == 0 {
		return nil, &errors.NotFoundError{What: "cache entry for", Name: r.Name()}
	}

	idx, err := c.load()
	if err != nil {
		return nil, err
	}

	for _, id := range sortedIDs(idx) {
		e := idx[id]
		if !e.matches(declared) {
			continue
		}
		if _, err := os.Stat(e.CachedPath); err != nil {
			continue
		}
		e.ID = id
		return e, nil
	}
	return nil, &errors.NotFoundError{What: "cache entry for", Name: r.Name()}
}

// IsCached reports whether Get would succeed.
func (c *Cache) IsCached(r Fetchable) bool {
	_, err := c.Get(r)
	return err == nil
}

// Delete removes the entry id and its file.
func (c *Cache) Delete(ctx context.Context, id string) error {
	return c.update(ctx, func(idx map[string]*Entry) error {
		e, ok := idx[id]
		if !ok {
			return &errors.NotFoundError{What: "cache entry", Name: id, Available: sortedIDs(idx)}
		}
		if err := os.Remove(e.CachedPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrap("remove cached artifact", e.CachedPath, err)
		}
		delete(idx, id)
		logging.DebugContext(ctx, "Removed cache entry %s", id)
		return nil
	})
}

// List returns all entries keyed by id.
func (c *Cache) List() (map[string]*Entry, error) {
	idx, err := c.load()
	if err != nil {
		return nil, err
	}
	for id, e := range idx {
		e.ID = id
	}
	return idx, nil
}

// VerifyResult is the outcome of re-checking one entry.
type VerifyResult struct {
	ID    string   `json:"id"`
	Names []string `json:"names"`
	Err   error    `json:"-"`
}

// OK reports whether the entry passed.
func (v VerifyResult) OK() bool { return v.Err == nil }

// Verify recomputes the digests of every entry in parallel and reports
// the result per entry, ordered by id. Entries are never modified.
func (c *Cache) Verify(ctx context.Context) ([]VerifyResult, error) {
	idx, err := c.List()
	if err != nil {
		return nil, err
	}

	ids := sortedIDs(idx)
	results := make([]VerifyResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, id := range ids {
		e := idx[id]
		results[i] = VerifyResult{ID: id, Names: e.Names}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i].Err = checksum.Check(e.CachedPath, e.Checksums)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if !r.OK() {
			logging.WarnContext(ctx, "Cache entry %s failed verification: %v", r.ID, r.Err)
		}
	}
	return results, nil
}

func (c *Cache) load() (map[string]*Entry, error) {
	idx := make(map[string]*Entry)
	data, err := os.ReadFile(filepath.Join(c.dir, indexFile))
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, errors.Wrap("read cache index", c.dir, err)
	}
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrap("parse cache index", c.dir, err)
	}
	if idx == nil {
		idx = make(map[string]*Entry)
	}
	return idx, nil
}

// update runs fn on the index under the cache lock and stores the result
// when fn succeeds.
func (c *Cache) update(ctx context.Context, fn func(map[string]*Entry) error) error {
	lock := flock.New(filepath.Join(c.dir, lockFile))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return errors.Wrap("lock cache index", c.dir, err)
	}
	if !locked {
		return errors.Wrap("lock cache index", c.dir, errors.New("lock not acquired"))
	}
	defer func() { _ = lock.Unlock() }()

	idx, err := c.load()
	if err != nil {
		return err
	}
	if err := fn(idx); err != nil {
		return err
	}
	return c.store(idx)
}

func (c *Cache) store(idx map[string]*Entry) error {
	data, err := yaml.Marshal(idx)
	if err != nil {
		return errors.Wrap("encode cache index", "", err)
	}

	tmp, err := os.CreateTemp(c.dir, indexFile+".*")
	if err != nil {
		return errors.Wrap("write cache index", c.dir, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap("write cache index", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap("write cache index", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, indexFile)); err != nil {
		return errors.Wrap("replace cache index", c.dir, err)
	}
	return nil
}

func supported(sums map[string]string) map[string]string {
	out := make(map[string]string, len(sums))
	for alg, v := range sums {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" && checksum.Supported(alg) {
			out[alg] = v
		}
	}
	return out
}

func sortedIDs(idx map[string]*Entry) []string {
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
