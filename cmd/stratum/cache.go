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

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/stratum/cache"
	"github.com/cowdogmoo/stratum/cli"
	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/errors"
	"github.com/cowdogmoo/stratum/logging"
	"github.com/cowdogmoo/stratum/resource"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact cache",
		Long:  `List, add, remove and verify artifacts in the local cache under <work-dir>/cache.`,
	}
	cmd.AddCommand(newCacheListCmd(), newCacheAddCmd(), newCacheRemoveCmd(), newCacheVerifyCmd())
	return cmd
}

func openCache(cmd *cobra.Command) (*cache.Cache, error) {
	return cache.New(configFromContext(cmd).CacheDir())
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List cached artifacts",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}
			idx, err := c.List()
			if err != nil {
				return err
			}
			entries := make(map[string]cache.Entry, len(idx))
			for id, e := range idx {
				entries[id] = *e
			}
			return formatter(cmd).DisplayCacheEntries(entries)
		},
	}
}

func newCacheAddCmd() *cobra.Command {
	var opts cli.CacheAddOptions

	cmd := &cobra.Command{
		Use:   "add <path|url>",
		Short: "Add an artifact to the cache",
		Long: `Fetch a local file or URL into the cache. At least one checksum is
required and every given checksum is verified.`,
		Example: `  stratum cache add ./jdk.tar.gz --sha256 4f1c...
  stratum cache add https://example.com/app.jar --md5 9e10... --name app.jar`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.Source = args[0]
			if err := cli.NewValidator().ValidateCacheAddOptions(opts); err != nil {
				return err
			}

			c, err := openCache(cmd)
			if err != nil {
				return err
			}
			r, err := cacheResource(opts, c)
			if err != nil {
				return err
			}
			id, err := c.Add(ctx, r)
			if err != nil {
				return err
			}

			logging.InfoContext(ctx, "Cached %s", logging.RedactURL(opts.Source))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Name, "name", "", "Artifact name recorded in the cache (default: source file name)")
	f.StringVar(&opts.MD5, "md5", "", "Expected md5 checksum")
	f.StringVar(&opts.SHA1, "sha1", "", "Expected sha1 checksum")
	f.StringVar(&opts.SHA256, "sha256", "", "Expected sha256 checksum")
	f.StringVar(&opts.SHA512, "sha512", "", "Expected sha512 checksum")
	return cmd
}

// cacheResource turns the add options into a path or url resource.
func cacheResource(opts cli.CacheAddOptions, c *cache.Cache) (resource.Resource, error) {
	d := &descriptor.Resource{
		Name:   opts.Name,
		MD5:    opts.MD5,
		SHA1:   opts.SHA1,
		SHA256: opts.SHA256,
		SHA512: opts.SHA512,
	}
	if strings.HasPrefix(opts.Source, "http://") || strings.HasPrefix(opts.Source, "https://") {
		d.URL = opts.Source
	} else {
		abs, err := filepath.Abs(opts.Source)
		if err != nil {
			return nil, errors.Wrap("resolve", opts.Source, err)
		}
		d.Path = abs
	}
	return resource.New(d, resource.Options{Cache: c})
}

func newCacheRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove"},
		Short:   "Remove artifacts from the cache",
		Args:    usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := c.Delete(cmd.Context(), id); err != nil {
					return err
				}
				logging.InfoContext(cmd.Context(), "Removed %s", id)
			}
			return nil
		},
	}
}

func newCacheVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute and check the checksums of every cached artifact",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}
			results, err := c.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if err := formatter(cmd).DisplayVerifyResults(results); err != nil {
				return err
			}

			var failed []string
			for _, r := range results {
				if !r.OK() {
					failed = append(failed, r.ID)
				}
			}
			if len(failed) > 0 {
				return errors.New(fmt.Sprintf("%d cached artifact(s) failed verification: %s",
					len(failed), strings.Join(failed, ", ")))
			}
			return nil
		},
	}
}
