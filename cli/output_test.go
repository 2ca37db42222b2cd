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

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/stratum/builder"
	"github.com/cowdogmoo/stratum/cache"
	"github.com/cowdogmoo/stratum/errors"
)

func testEntries() map[string]cache.Entry {
	return map[string]cache.Entry{
		"b-id": {ID: "b-id", Names: []string{"app.jar"}, Checksums: map[string]string{"sha256": "bb", "md5": "aa"}},
		"a-id": {ID: "a-id", Names: []string{"lib.jar", "lib-copy.jar"}, Checksums: map[string]string{"sha1": "cc"}},
	}
}

func TestNewOutputFormatter(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "text", want: FormatText},
		{format: "json", want: FormatJSON},
		{format: "table", want: FormatTable},
		{format: "yaml", want: FormatText},
		{format: "", want: FormatText},
	}

	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, NewOutputFormatter(tt.format).format)
		})
	}
}

func TestDisplayCacheEntries_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewOutputFormatterTo(FormatText, &buf).DisplayCacheEntries(testEntries()))

	out := buf.String()
	assert.Less(t, strings.Index(out, "a-id:"), strings.Index(out, "b-id:"))
	assert.Contains(t, out, "  names: lib.jar, lib-copy.jar")
	assert.Less(t, strings.Index(out, "md5: aa"), strings.Index(out, "sha256: bb"))
}

func TestDisplayCacheEntries_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewOutputFormatterTo(FormatText, &buf).DisplayCacheEntries(nil))
	assert.Equal(t, "No artifacts cached\n", buf.String())
}

func TestDisplayCacheEntries_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewOutputFormatterTo(FormatJSON, &buf).DisplayCacheEntries(testEntries()))

	var got []cache.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "a-id", got[0].ID)
	assert.Equal(t, "bb", got[1].Checksums["sha256"])
}

func TestDisplayCacheEntries_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewOutputFormatterTo(FormatTable, &buf).DisplayCacheEntries(testEntries()))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "md5:aa sha256:bb")
}

func TestDisplayVerifyResults(t *testing.T) {
	results := []cache.VerifyResult{
		{ID: "a-id", Names: []string{"lib.jar"}},
		{ID: "b-id", Names: []string{"app.jar"}, Err: errors.New("sha256 checksum mismatch")},
	}

	var text bytes.Buffer
	require.NoError(t, NewOutputFormatterTo(FormatText, &text).DisplayVerifyResults(results))
	assert.Equal(t, "a-id (lib.jar): ok\nb-id (app.jar): sha256 checksum mismatch\n", text.String())

	var js bytes.Buffer
	require.NoError(t, NewOutputFormatterTo(FormatJSON, &js).DisplayVerifyResults(results))
	var got []map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &got))
	require.Len(t, got, 2)
	assert.NotContains(t, got[0], "error")
	assert.Equal(t, "sha256 checksum mismatch", got[1]["error"])
}

func TestDisplayBuildManifest(t *testing.T) {
	m := &builder.BuildManifest{
		Image:    "app",
		Version:  "1.0",
		Engine:   builder.Docker,
		Duration: "1m2s",
		Tags:     []string{"app:1.0", "app:latest"},
		ImageID:  "sha256:feed",
		Modules:  []builder.ManifestModule{{Name: "jdk", Version: "17"}},
	}

	var buf bytes.Buffer
	require.NoError(t, NewOutputFormatterTo(FormatText, &buf).DisplayBuildManifest(m))
	out := buf.String()
	assert.Contains(t, out, "image: app:1.0\n")
	assert.Contains(t, out, "engine: docker\n")
	assert.Contains(t, out, "tags: app:1.0, app:latest\n")
	assert.Contains(t, out, "modules: jdk:17\n")

	buf.Reset()
	require.NoError(t, NewOutputFormatterTo(FormatText, &buf).DisplayBuildManifest(&builder.BuildManifest{Image: "app", Version: "1.0", DryRun: true}))
	assert.Contains(t, buf.String(), "dry run: true")
	assert.NotContains(t, buf.String(), "engine")
}
