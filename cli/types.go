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

// BuildCLIOptions defines command-line options for the build command.
//
// BuildCLIOptions captures options provided by the user via CLI flags
// and arguments. These are validated before being passed to the build logic.
type BuildCLIOptions struct {
	// Descriptor is the path of the image descriptor.
	Descriptor string

	// Overrides are override files or inline YAML, applied in order.
	Overrides []string

	// Engine names the build engine (docker, buildah, podman, osbs).
	Engine string

	// Target is the directory receiving the build context and manifest.
	Target string

	// Tags name the built image. Not supported by osbs.
	Tags []string

	// Labels are extra image labels as key=value strings, applied after
	// every override.
	Labels []string

	// EngineArgs is passed to the engine command line.
	EngineArgs string

	// DryRun generates the build context without building.
	DryRun bool

	// Pull always pulls the base image.
	Pull bool

	// NoSquash keeps intermediate layers.
	NoSquash bool

	// OSBS holds options only the osbs engine accepts.
	OSBS OSBSCLIOptions
}

// OSBSCLIOptions are the osbs engine flags.
type OSBSCLIOptions struct {
	User       string
	KojiTarget string
	Stage      bool
	Nowait     bool
	Scratch    bool
}

// Set reports whether any osbs-only option was given.
func (o OSBSCLIOptions) Set() bool {
	return o != OSBSCLIOptions{}
}

// CacheAddOptions defines options for adding an artifact to the cache.
type CacheAddOptions struct {
	// Source is a local path or a URL.
	Source string

	// Name overrides the artifact name recorded in the cache.
	Name string

	MD5    string
	SHA1   string
	SHA256 string
	SHA512 string
}

// Checksums returns the declared digests keyed by algorithm.
func (o CacheAddOptions) Checksums() map[string]string {
	sums := map[string]string{}
	for alg, v := range map[string]string{"md5": o.MD5, "sha1": o.SHA1, "sha256": o.SHA256, "sha512": o.SHA512} {
		if v != "" {
			sums[alg] = v
		}
	}
	return sums
}
