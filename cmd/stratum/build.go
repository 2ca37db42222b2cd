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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/stratum/builder"
	"github.com/cowdogmoo/stratum/cache"
	"github.com/cowdogmoo/stratum/cli"
	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/descriptor"
	"github.com/cowdogmoo/stratum/generator"
	"github.com/cowdogmoo/stratum/logging"
	"github.com/cowdogmoo/stratum/resolver"
	"github.com/cowdogmoo/stratum/resource"
)

// descriptorFlags are shared by every command that reads a descriptor.
type descriptorFlags struct {
	path      string
	overrides []string
	labels    []string
}

func (f *descriptorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "descriptor", "d", generator.DescriptorFile, "Image descriptor file")
	cmd.Flags().StringArrayVar(&f.overrides, "overrides", nil, "Override file or inline YAML (repeatable, applied in order)")
	cmd.Flags().StringArrayVar(&f.labels, "label", nil, "Extra image label as key=value (repeatable)")
}

// loadDescriptor reads the descriptor and its overrides.
func loadDescriptor(opts cli.BuildCLIOptions) (*descriptor.Image, []*descriptor.Image, error) {
	img, err := descriptor.LoadImages(opts.Descriptor, nil)
	if err != nil {
		return nil, nil, err
	}
	overrides, err := cli.LoadOverrides(opts, nil)
	if err != nil {
		return nil, nil, err
	}
	return img, overrides, nil
}

func (f *descriptorFlags) options() cli.BuildCLIOptions {
	return cli.BuildCLIOptions{
		Descriptor: f.path,
		Overrides:  f.overrides,
		Labels:     f.labels,
	}
}

// resourceOptions derives artifact settings from the config. Relative
// path artifacts resolve against the descriptor directory.
func resourceOptions(cfg *config.Config, descriptorPath string) (resource.Options, error) {
	opts := resource.Options{
		BaseDir:       filepath.Dir(descriptorPath),
		CacheURL:      cfg.Common.CacheURL,
		SkipIntegrity: cfg.Integrity.Disabled,
	}
	if abs, err := filepath.Abs(opts.BaseDir); err == nil {
		opts.BaseDir = abs
	}
	if opts.SkipIntegrity {
		return opts, nil
	}
	c, err := cache.New(cfg.CacheDir())
	if err != nil {
		return opts, err
	}
	opts.Cache = c
	return opts, nil
}

func newResolver(cfg *config.Config, overrides []*descriptor.Image, res resource.Options) *resolver.Resolver {
	return resolver.New(resolver.Options{
		WorkDir:     cfg.Common.WorkDir,
		Overrides:   overrides,
		Resource:    res,
		ToolVersion: version,
	})
}

func newBuildCmd() *cobra.Command {
	var (
		desc    descriptorFlags
		dryRun  bool
		scratch bool
	)

	cmd := &cobra.Command{
		Use:   "build [engine]",
		Short: "Generate the build context and build the image",
		Long: `Resolve the image descriptor, generate its build context under the
target directory and build it with the selected engine.

Engines: buildah, docker, osbs, podman. The default engine comes from the
build.engine config key.`,
		Example: `  # Build with podman
  stratum build podman

  # Generate the context only
  stratum build --dry-run

  # Apply overrides and tag the result
  stratum build --overrides overrides.yaml --tag app:dev docker`,
		Args:      usageArgs(cobra.MaximumNArgs(1)),
		ValidArgs: builder.Engines(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromContext(cmd)
			opts := desc.options()
			opts.Engine = cfg.Build.Engine
			if len(args) == 1 {
				opts.Engine = args[0]
			}
			opts.Target = cfg.Build.Target
			opts.Tags = cfg.Build.Tags
			opts.EngineArgs = cfg.Build.EngineArgs
			opts.DryRun = dryRun
			opts.Pull = cfg.Build.Pull
			opts.NoSquash = cfg.Build.NoSquash
			opts.OSBS = cli.OSBSCLIOptions{
				User:       cfg.OSBS.User,
				KojiTarget: cfg.OSBS.KojiTarget,
				Stage:      cfg.OSBS.Stage,
				Nowait:     cfg.OSBS.Nowait,
				Scratch:    scratch,
			}
			return runBuild(cmd, cfg, opts)
		},
	}

	desc.register(cmd)
	f := cmd.Flags()
	f.String("target", "target", "Directory receiving the build context and manifest")
	f.StringSliceP("tag", "t", nil, "Image tag (repeatable, not supported by osbs)")
	f.String("engine-args", "", "Extra arguments passed to the engine")
	f.BoolVar(&dryRun, "dry-run", false, "Generate the build context without building")
	f.Bool("pull", false, "Always pull the base image")
	f.Bool("no-squash", false, "Keep intermediate layers")
	f.String("user", "", "osbs: dist-git user")
	f.String("koji-target", "", "osbs: koji build target")
	f.Bool("stage", false, "osbs: use the staging environment")
	f.Bool("nowait", false, "osbs: do not wait for the build to finish")
	f.BoolVar(&scratch, "scratch", false, "osbs: submit a scratch build")

	return cmd
}

func runBuild(cmd *cobra.Command, cfg *config.Config, opts cli.BuildCLIOptions) error {
	ctx := cmd.Context()

	if err := cli.NewValidator().ValidateBuildOptions(opts); err != nil {
		return err
	}

	img, overrides, err := loadDescriptor(opts)
	if err != nil {
		return err
	}
	res, err := resourceOptions(cfg, opts.Descriptor)
	if err != nil {
		return err
	}

	var engine builder.Engine
	if !opts.DryRun {
		engine, err = builder.New(opts.Engine, builder.Options{
			Runner:     &builder.ExecRunner{Stdout: cmd.ErrOrStderr(), Stderr: cmd.ErrOrStderr()},
			EngineArgs: opts.EngineArgs,
			OSBS: builder.OSBSOptions{
				Redhat:     cfg.Common.Redhat,
				Stage:      opts.OSBS.Stage,
				User:       opts.OSBS.User,
				KojiTarget: opts.OSBS.KojiTarget,
				Nowait:     opts.OSBS.Nowait,
				Scratch:    opts.OSBS.Scratch,
			},
		})
		if err != nil {
			return err
		}
	}

	fileName := generator.DefaultFileName
	if opts.Engine == builder.OSBS {
		fileName = "Dockerfile"
	}

	logging.InfoContext(ctx, "Building %s with %s", img.Name, opts.Engine)
	svc := builder.NewBuildService(newResolver(cfg, overrides, res), engine)
	manifest, err := svc.Execute(ctx, img, builder.BuildOptions{
		TargetDir:   opts.Target,
		Tags:        opts.Tags,
		Pull:        opts.Pull,
		NoSquash:    opts.NoSquash,
		DryRun:      opts.DryRun,
		FileName:    fileName,
		Resource:    res,
		ToolVersion: version,
	})
	if err != nil {
		return err
	}

	return formatter(cmd).DisplayBuildManifest(manifest)
}
