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

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/stratum/descriptor"
)

func newResolveCmd() *cobra.Command {
	var desc descriptorFlags

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the effective image descriptor",
		Long: `Merge overrides and modules into the image descriptor and print the
result as YAML. Module repositories are fetched into the work directory.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFromContext(cmd)
			opts := desc.options()

			img, overrides, err := loadDescriptor(opts)
			if err != nil {
				return err
			}
			res, err := resourceOptions(cfg, opts.Descriptor)
			if err != nil {
				return err
			}
			result, err := newResolver(cfg, overrides, res).Resolve(cmd.Context(), img)
			if err != nil {
				return err
			}

			data, err := descriptor.Marshal(result.Image)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	desc.register(cmd)
	return cmd
}

func newValidateCmd() *cobra.Command {
	var desc descriptorFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the image descriptor and overrides",
		Long: `Check the image descriptor and every override against the schema and
make sure the overrides merge cleanly. Modules are not fetched.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := desc.options()

			img, overrides, err := loadDescriptor(opts)
			if err != nil {
				return err
			}
			merged := img.Clone()
			for _, o := range overrides {
				if err := merged.ApplyOverride(o); err != nil {
					return err
				}
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d override(s))\n", opts.Descriptor, len(overrides))
			return err
		},
	}
	desc.register(cmd)
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema <kind>",
		Short:     "Print the JSON schema of a descriptor kind",
		Args:      usageArgs(cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)),
		ValidArgs: descriptor.Kinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := descriptor.Schema(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
