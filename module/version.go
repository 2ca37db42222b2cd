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
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var numericRelease = regexp.MustCompile(`^v?\d+(\.\d+)*$`)

// version is a parsed module version. Conforming versions have a numeric
// release and an optional pre-release; anything else is legacy.
type version struct {
	raw     string
	legacy  bool
	release []uint64
	pre     string
	sv      *semver.Version
}

func parseVersion(s string) version {
	v := version{raw: strings.TrimSpace(s)}

	if numericRelease.MatchString(v.raw) {
		for _, part := range strings.Split(strings.TrimPrefix(v.raw, "v"), ".") {
			n, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				v.legacy = true
				return v
			}
			v.release = append(v.release, n)
		}
		return v
	}

	sv, err := semver.NewVersion(v.raw)
	if err != nil {
		v.legacy = true
		return v
	}
	v.sv = sv
	v.release = []uint64{sv.Major(), sv.Minor(), sv.Patch()}
	v.pre = sv.Prerelease()
	return v
}

// IsLegacy reports whether s does not parse as a conforming version.
func IsLegacy(s string) bool {
	return parseVersion(s).legacy
}

// CompareVersions orders module versions. Numeric releases compare
// component-wise with missing components read as zero, so 1.0 equals
// 1.0.0. A pre-release sorts before its release. Legacy strings sort
// before every conforming version and compare lexically among
// themselves. It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	va, vb := parseVersion(a), parseVersion(b)

	switch {
	case va.legacy && vb.legacy:
		return strings.Compare(va.raw, vb.raw)
	case va.legacy:
		return -1
	case vb.legacy:
		return 1
	}

	n := max(len(va.release), len(vb.release))
	for i := 0; i < n; i++ {
		x, y := component(va.release, i), component(vb.release, i)
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}

	switch {
	case va.pre == vb.pre:
		return 0
	case va.pre == "":
		return 1
	case vb.pre == "":
		return -1
	}

	pa, errA := semver.NewVersion("0.0.0-" + va.pre)
	pb, errB := semver.NewVersion("0.0.0-" + vb.pre)
	if errA == nil && errB == nil {
		return pa.Compare(pb)
	}
	return strings.Compare(va.pre, vb.pre)
}

func component(r []uint64, i int) uint64 {
	if i < len(r) {
		return r[i]
	}
	return 0
}
