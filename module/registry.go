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

// Package module keeps the registry of discovered modules and decides which
// version of a module an install reference resolves to.
package module

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
)

// Registry maps module names to their known versions. Each name has a
// default version, the highest one registered.
type Registry struct {
	modules  map[string]map[string]*descriptor.Module
	defaults map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules:  make(map[string]map[string]*descriptor.Module),
		defaults: make(map[string]string),
	}
}

// Add registers m. Registering an identical module again is a no-op; a
// different module under the same name and version is a ConflictError.
func (r *Registry) Add(ctx context.Context, m *descriptor.Module) error {
	if m == nil {
		return &errors.InternalError{Msg: "nil module added to registry"}
	}
	name, ver := m.Name, m.Version.String()
	if name == "" || ver == "" {
		return &errors.InternalError{Msg: fmt.Sprintf("module %q registered without a name or version", name+":"+ver)}
	}

	if IsLegacy(ver) {
		logging.WarnContext(ctx, "Module %s uses version %q which is not a conforming version string; it sorts below all conforming versions", name, ver)
	}

	versions, ok := r.modules[name]
	if !ok {
		versions = make(map[string]*descriptor.Module)
		r.modules[name] = versions
	}

	if existing, ok := versions[ver]; ok {
		same, err := descriptor.Equal(existing, m)
		if err != nil {
			return err
		}
		if !same {
			return &errors.ConflictError{
				What:   "module",
				Name:   name + ":" + ver,
				Reason: fmt.Sprintf("defined in both %s and %s", existing.Dir, m.Dir),
			}
		}
		logging.DebugContext(ctx, "Module %s:%s already registered from %s", name, ver, existing.Dir)
		return nil
	}

	versions[ver] = m
	if cur, ok := r.defaults[name]; !ok || CompareVersions(ver, cur) > 0 {
		r.defaults[name] = ver
	}
	logging.DebugContext(ctx, "Registered module %s:%s from %s", name, ver, m.Dir)
	return nil
}

// Get returns the module name at version, or its default version when
// version is empty.
func (r *Registry) Get(ctx context.Context, name, version string) (*descriptor.Module, error) {
	versions, ok := r.modules[name]
	if !ok {
		return nil, &errors.NotFoundError{What: "module", Name: name, Available: r.Suggest(name)}
	}

	if version == "" {
		version = r.defaults[name]
		if len(versions) > 1 {
			logging.WarnContext(ctx, "Module %s is available in versions %s and no version was requested; using default %s",
				name, strings.Join(r.Versions(name), ", "), version)
		}
	}

	m, ok := versions[version]
	if !ok {
		return nil, &errors.NotFoundError{What: "module " + name + " version", Name: version, Available: r.Versions(name)}
	}
	return m, nil
}

// Merge adds every module of other to r. Entries of other replace entries
// of r with the same name and version.
func (r *Registry) Merge(other *Registry) {
	for name, versions := range other.modules {
		dst, ok := r.modules[name]
		if !ok {
			dst = make(map[string]*descriptor.Module, len(versions))
			r.modules[name] = dst
		}
		for ver, m := range versions {
			dst[ver] = m
			if cur, ok := r.defaults[name]; !ok || CompareVersions(ver, cur) > 0 {
				r.defaults[name] = ver
			}
		}
	}
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Versions returns the versions of name in ascending order.
func (r *Registry) Versions(name string) []string {
	versions := make([]string, 0, len(r.modules[name]))
	for v := range r.modules[name] {
		versions = append(versions, v)
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
	return versions
}

// Default returns the default version of name.
func (r *Registry) Default(name string) (string, bool) {
	v, ok := r.defaults[name]
	return v, ok
}

// All returns every registered module, ordered by name then version.
func (r *Registry) All() []*descriptor.Module {
	var all []*descriptor.Module
	for _, n := range r.Names() {
		for _, v := range r.Versions(n) {
			all = append(all, r.modules[n][v])
		}
	}
	return all
}

// Len returns the number of registered name/version pairs.
func (r *Registry) Len() int {
	n := 0
	for _, versions := range r.modules {
		n += len(versions)
	}
	return n
}

// Suggest returns registered names close to name, best match first.
func (r *Registry) Suggest(name string) []string {
	names := r.Names()
	if name == "" || len(names) == 0 {
		return nil
	}

	type candidate struct {
		name string
		dist int
	}
	seen := make(map[string]bool)
	var cands []candidate

	for _, rank := range fuzzy.RankFindFold(name, names) {
		seen[rank.Target] = true
		cands = append(cands, candidate{rank.Target, rank.Distance})
	}

	limit := max(2, len(name)/3)
	lower := strings.ToLower(name)
	for _, n := range names {
		if seen[n] {
			continue
		}
		if d := fuzzy.LevenshteinDistance(lower, strings.ToLower(n)); d <= limit {
			cands = append(cands, candidate{n, d})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].name < cands[j].name
	})

	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.name)
	}
	return out
}
