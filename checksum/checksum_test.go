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

package checksum_test

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cowdogmoo/stratum/checksum"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "artifact.bin")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDigestKnownValues(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "hello world")
	sum512 := sha512.Sum512([]byte("hello world"))

	tests := []struct {
		alg  string
		want string
	}{
		{checksum.MD5, "5eb63bbbe01eeed093cb22bb8f5acdc3"},
		{checksum.SHA1, "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"},
		{checksum.SHA256, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{checksum.SHA512, hex.EncodeToString(sum512[:])},
	}

	for _, tt := range tests {
		t.Run(tt.alg, func(t *testing.T) {
			got, err := checksum.Digest(p, tt.alg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDigestDeterministicAndSensitive(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("stratum-layer-", 20000)
	p := writeFile(t, content)

	first, err := checksum.Digest(p, checksum.SHA256)
	require.NoError(t, err)
	second, err := checksum.Digest(p, checksum.SHA256)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	mutated := []byte(content)
	mutated[len(mutated)/2] ^= 0x01
	require.NoError(t, os.WriteFile(p, mutated, 0o644))

	third, err := checksum.Digest(p, checksum.SHA256)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestDigestAllMatchesSingle(t *testing.T) {
	t.Parallel()

	p := writeFile(t, strings.Repeat("x", 3*64*1024+17))
	all, err := checksum.DigestAll(p, checksum.Algorithms...)
	require.NoError(t, err)
	require.Len(t, all, len(checksum.Algorithms))

	for _, alg := range checksum.Algorithms {
		single, err := checksum.Digest(p, alg)
		require.NoError(t, err)
		assert.Equal(t, single, all[alg], alg)
	}
}

func TestDigestReader(t *testing.T) {
	t.Parallel()

	got, err := checksum.DigestReader(bytes.NewBufferString("hello world"), checksum.MD5)
	require.NoError(t, err)
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", got)
}

func TestVerifyCaseInsensitive(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "hello world")

	ok, err := checksum.Verify(p, checksum.MD5, "5EB63BBBE01EEED093CB22BB8F5ACDC3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checksum.Verify(p, checksum.MD5, "00000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMissingFile(t *testing.T) {
	t.Parallel()

	_, err := checksum.Digest(filepath.Join(t.TempDir(), "missing"), checksum.SHA256)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "data")
	_, err := checksum.Digest(p, "crc32")

	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Checksum", ve.Kind)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "hello world")

	require.NoError(t, checksum.Check(p, nil))
	require.NoError(t, checksum.Check(p, map[string]string{
		checksum.MD5:    "5eb63bbbe01eeed093cb22bb8f5acdc3",
		checksum.SHA256: "B94D27B9934D3E08A52E52D7DA7DABFAC484EFE37A5380EE9088F7ACE2EFCDE9",
	}))

	err := checksum.Check(p, map[string]string{
		checksum.MD5:  "5eb63bbbe01eeed093cb22bb8f5acdc3",
		checksum.SHA1: "deadbeef",
	})
	var ie *errors.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, checksum.SHA1, ie.Algorithm)
	assert.Equal(t, p, ie.Path)
}

func TestPickPrefersStrongest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sums    map[string]string
		wantAlg string
		wantOK  bool
	}{
		{"none", map[string]string{}, "", false},
		{"md5 only", map[string]string{"md5": "AB"}, checksum.MD5, true},
		{"md5 and sha256", map[string]string{"md5": "ab", "sha256": "cd"}, checksum.SHA256, true},
		{"all", map[string]string{"md5": "a", "sha1": "b", "sha256": "c", "sha512": "d"}, checksum.SHA512, true},
		{"blank ignored", map[string]string{"sha512": " ", "sha1": "b"}, checksum.SHA1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alg, _, ok := checksum.Pick(tt.sums)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAlg, alg)
		})
	}
}

func TestOCIDigest(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "hello world")
	d, err := checksum.OCIDigest(p, checksum.SHA256)
	require.NoError(t, err)
	assert.Equal(t, "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", d.String())

	_, err = checksum.OCIDigest(p, checksum.MD5)
	assert.Error(t, err)
}
