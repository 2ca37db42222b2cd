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

// Package checksum computes and verifies file digests for the algorithms
// artifacts may declare: md5, sha1, sha256 and sha512.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/cowdogmoo/stratum/errors"
	"github.com/opencontainers/go-digest"
)

const (
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA512 = "sha512"

	chunkSize = 64 * 1024
)

// Algorithms lists the supported algorithms in declaration order.
var Algorithms = []string{MD5, SHA1, SHA256, SHA512}

// Strongest lists the supported algorithms strongest first. It is the
// order used when one declared digest has to identify an artifact.
var Strongest = []string{SHA512, SHA256, SHA1, MD5}

// Supported reports whether alg is one of Algorithms.
func Supported(alg string) bool {
	switch alg {
	case MD5, SHA1, SHA256, SHA512:
		return true
	}
	return false
}

func newHash(alg string) (hash.Hash, error) {
	switch alg {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return digest.SHA256.Hash(), nil
	case SHA512:
		return digest.SHA512.Hash(), nil
	}
	return nil, errors.NewValidation("Checksum", "unsupported algorithm "+alg)
}

// DigestReader returns the lowercase hex digest of everything read from r.
func DigestReader(r io.Reader, alg string) (string, error) {
	sums, err := digestReader(r, []string{alg})
	if err != nil {
		return "", err
	}
	return sums[alg], nil
}

// Digest returns the lowercase hex digest of the file at path.
func Digest(path, alg string) (string, error) {
	sums, err := DigestAll(path, alg)
	if err != nil {
		return "", err
	}
	return sums[alg], nil
}

// DigestAll computes several digests of one file in a single pass.
func DigestAll(path string, algs ...string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap("open file for checksum", path, err)
	}
	defer func() { _ = f.Close() }()

	return digestReader(f, algs)
}

func digestReader(r io.Reader, algs []string) (map[string]string, error) {
	hashes := make(map[string]hash.Hash, len(algs))
	writers := make([]io.Writer, 0, len(algs))
	for _, alg := range algs {
		if _, ok := hashes[alg]; ok {
			continue
		}
		h, err := newHash(alg)
		if err != nil {
			return nil, err
		}
		hashes[alg] = h
		writers = append(writers, h)
	}

	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(io.MultiWriter(writers...), r, buf); err != nil {
		return nil, errors.Wrap("read data for checksum", "", err)
	}

	sums := make(map[string]string, len(hashes))
	for alg, h := range hashes {
		sums[alg] = digest.Algorithm(alg).Encode(h.Sum(nil))
	}
	return sums, nil
}

// Verify reports whether the file's digest equals expected, ignoring case.
func Verify(path, alg, expected string) (bool, error) {
	actual, err := Digest(path, alg)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, strings.TrimSpace(expected)), nil
}

// Check verifies every declared digest of the file and returns an
// IntegrityError for the first mismatch. Algorithms are checked strongest
// first.
func Check(path string, declared map[string]string) error {
	algs := Declared(declared)
	if len(algs) == 0 {
		return nil
	}

	actual, err := DigestAll(path, algs...)
	if err != nil {
		return err
	}
	for _, alg := range algs {
		if !strings.EqualFold(actual[alg], strings.TrimSpace(declared[alg])) {
			return &errors.IntegrityError{
				Path:      path,
				Algorithm: alg,
				Expected:  strings.ToLower(declared[alg]),
				Actual:    actual[alg],
			}
		}
	}
	return nil
}

// Declared returns the supported algorithms with a non-empty value in
// sums, strongest first.
func Declared(sums map[string]string) []string {
	var algs []string
	for _, alg := range Strongest {
		if strings.TrimSpace(sums[alg]) != "" {
			algs = append(algs, alg)
		}
	}
	return algs
}

// Pick returns the strongest declared algorithm and its value.
func Pick(sums map[string]string) (alg, value string, ok bool) {
	algs := Declared(sums)
	if len(algs) == 0 {
		return "", "", false
	}
	return algs[0], strings.ToLower(strings.TrimSpace(sums[algs[0]])), true
}

// OCIDigest returns the file's digest in OCI form (sha256:<hex>). Only
// sha256 and sha512 have an OCI representation.
func OCIDigest(path, alg string) (digest.Digest, error) {
	a := digest.Algorithm(alg)
	if alg != SHA256 && alg != SHA512 {
		return "", errors.NewValidation("Checksum", "no OCI digest form for "+alg)
	}
	hex, err := Digest(path, alg)
	if err != nil {
		return "", err
	}
	d := digest.NewDigestFromEncoded(a, hex)
	if err := d.Validate(); err != nil {
		return "", errors.Wrap("validate digest", d.String(), err)
	}
	return d, nil
}
