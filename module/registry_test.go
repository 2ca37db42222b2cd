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

package module

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
)

func newModule(name, version string) *descriptor.Module {
	return &descriptor.Module{Image: descriptor.Image{Name: name, Version: descriptor.Scalar(version)}}
}

func testContext(buf *bytes.Buffer) context.Context {
	l := logging.New(logging.DebugLevel)
	l.Writer = buf
	return logging.WithLogger(context.Background(), l)
}

func TestRegistry_DefaultVersion(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		want     string
	}{
		{name: "highest numeric wins", versions: []string{"1.0", "2.0", "1.5"}, want: "2.0"},
		{name: "numeric beats legacy", versions: []string{"legacy", "0.1"}, want: "0.1"},
		{name: "legacy alone", versions: []string{"snapshot"}, want: "snapshot"},
		{name: "release beats prerelease", versions: []string{"2.0.0", "2.0.0-rc1"}, want: "2.0.0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := testContext(&bytes.Buffer{})
			reg := NewRegistry()
			for _, v := range tc.versions {
				require.NoError(t, reg.Add(ctx, newModule("jdk", v)))
			}

			def, ok := reg.Default("jdk")
			require.True(t, ok)
			assert.Equal(t, tc.want, def)

			m, err := reg.Get(ctx, "jdk", "")
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.Version.String())
		})
	}
}

func TestRegistry_LegacyWarning(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry()
	require.NoError(t, reg.Add(testContext(&buf), newModule("jdk", "latest")))
	assert.Contains(t, buf.String(), "not a conforming version")
}

func TestRegistry_AddIdenticalAndConflict(t *testing.T) {
	ctx := testContext(&bytes.Buffer{})
	reg := NewRegistry()

	a := newModule("jdk", "1.0")
	a.From = "base:1"
	a.Dir = "/a"
	require.NoError(t, reg.Add(ctx, a))

	same := newModule("jdk", "1.0")
	same.From = "base:1"
	same.Dir = "/b"
	require.NoError(t, reg.Add(ctx, same))
	assert.Equal(t, 1, reg.Len())

	other := newModule("jdk", "1.0")
	other.From = "base:2"
	err := reg.Add(ctx, other)
	var ce *errors.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "jdk:1.0", ce.Name)
}

func TestRegistry_AddWithoutVersion(t *testing.T) {
	err := NewRegistry().Add(context.Background(), newModule("jdk", ""))
	var ie *errors.InternalError
	assert.ErrorAs(t, err, &ie)
}

func TestRegistry_GetNotFound(t *testing.T) {
	ctx := testContext(&bytes.Buffer{})
	reg := NewRegistry()
	require.NoError(t, reg.Add(ctx, newModule("openjdk", "1.0")))
	require.NoError(t, reg.Add(ctx, newModule("openjdk", "2.0")))
	require.NoError(t, reg.Add(ctx, newModule("maven", "3.8")))

	t.Run("unknown version lists versions", func(t *testing.T) {
		_, err := reg.Get(ctx, "openjdk", "3.0")
		var nf *errors.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, []string{"1.0", "2.0"}, nf.Available)
		assert.Contains(t, err.Error(), "available: 1.0, 2.0")
	})

	t.Run("versions listed in version order", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Add(ctx, newModule("maven", "10.0")))
		require.NoError(t, reg.Add(ctx, newModule("maven", "9.0")))
		_, err := reg.Get(ctx, "maven", "11.0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "available: 9.0, 10.0")
	})

	t.Run("unknown name suggests close names", func(t *testing.T) {
		_, err := reg.Get(ctx, "openjkd", "")
		var nf *errors.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, []string{"openjdk"}, nf.Available)
	})
}

func TestRegistry_AmbiguousDefaultWarns(t *testing.T) {
	var buf bytes.Buffer
	ctx := testContext(&buf)
	reg := NewRegistry()
	require.NoError(t, reg.Add(ctx, newModule("jdk", "1.0")))
	require.NoError(t, reg.Add(ctx, newModule("jdk", "2.0")))

	buf.Reset()
	m, err := reg.Get(ctx, "jdk", "")
	require.NoError(t, err)
	assert.Equal(t, "2.0", m.Version.String())
	assert.Contains(t, buf.String(), "using default 2.0")

	buf.Reset()
	_, err = reg.Get(ctx, "jdk", "1.0")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestRegistry_Merge(t *testing.T) {
	ctx := testContext(&bytes.Buffer{})
	a := NewRegistry()
	require.NoError(t, a.Add(ctx, newModule("jdk", "1.0")))

	b := NewRegistry()
	replacement := newModule("jdk", "1.0")
	replacement.From = "other"
	require.NoError(t, b.Add(ctx, replacement))
	require.NoError(t, b.Add(ctx, newModule("jdk", "3.0")))
	require.NoError(t, b.Add(ctx, newModule("maven", "1")))

	a.Merge(b)
	assert.Equal(t, []string{"jdk", "maven"}, a.Names())
	assert.Equal(t, []string{"1.0", "3.0"}, a.Versions("jdk"))

	m, err := a.Get(ctx, "jdk", "1.0")
	require.NoError(t, err)
	assert.Equal(t, "other", m.From)

	def, _ := a.Default("jdk")
	assert.Equal(t, "3.0", def)
	assert.Len(t, a.All(), 3)
}

func TestRegistry_Suggest(t *testing.T) {
	ctx := testContext(&bytes.Buffer{})
	reg := NewRegistry()
	for _, n := range []string{"org.jboss.jdk", "org.jboss.maven", "python"} {
		require.NoError(t, reg.Add(ctx, newModule(n, "1")))
	}

	assert.Equal(t, []string{"org.jboss.jdk"}, reg.Suggest("jboss.jdk"))
	assert.Equal(t, []string{"python"}, reg.Suggest("pyhton"))
	assert.Empty(t, reg.Suggest("zzzzzzzzzz"))
}
