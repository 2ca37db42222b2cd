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

// Package main implements the stratum CLI: it resolves image descriptors
// and their modules, caches artifacts and drives container builds.
package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/stratum/cli"
	"github.com/cowdogmoo/stratum/config"
	"github.com/cowdogmoo/stratum/logging"
)

// Context key type for storing config
type configKeyType struct{}

var configKey = configKeyType{}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	cfgFile string
	quiet   bool
	verbose bool
	output  string
}

// newRootCmd builds the full command tree. Each call returns fresh flag
// state.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "stratum",
		Short: "Stratum - container image descriptor resolver and build driver",
		Long: `Stratum resolves layered image descriptors and reusable modules into
one effective image, fetches and caches the artifacts it needs and drives
docker, buildah, podman or OSBS to build it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, opts)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &cli.UsageError{Msg: err.Error()}
	})

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.cfgFile, "config", "c", "", "Config file (default is $XDG_CONFIG_HOME/stratum/config.yaml)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (plain, color, json)")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "Quiet mode - only show errors")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose mode - show debug output")
	pf.StringVarP(&opts.output, "output", "o", cli.FormatText, "Output format (text, json, table)")
	pf.String("work-dir", "", "Directory for fetched repositories and the artifact cache")
	pf.String("cache-url", "", "Cache proxy URL template (#filename#, #algorithm#, #hash#)")
	pf.Bool("redhat", false, "Use Red Hat tooling (rhpkg) and defaults")
	pf.Bool("no-integrity", false, "Skip artifact checksum verification")

	cmd.AddCommand(
		newBuildCmd(),
		newResolveCmd(),
		newValidateCmd(),
		newCacheCmd(),
		newSchemaCmd(),
		newVersionCmd(),
	)
	return cmd
}

// initConfig loads the global config with the precedence
// CLI Flags > Environment Variables > Config File > Defaults
// and stores it with the logger in the command context.
func initConfig(cmd *cobra.Command, opts *rootOptions) error {
	var (
		cfg *config.Config
		err error
	)
	if opts.cfgFile != "" {
		cfg, err = config.LoadFromPath(opts.cfgFile, cmd.Flags())
	} else {
		cfg, err = config.Load(cmd.Flags())
	}
	if err != nil {
		return err
	}

	logger := logging.Initialize(cfg.Log.Level, cfg.Log.Format, opts.quiet, opts.verbose)
	logger.Writer = cmd.ErrOrStderr()
	logger.Stdout = cmd.OutOrStdout()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = logging.WithLogger(ctx, logger)
	cmd.SetContext(ctx)

	logging.DebugContext(ctx, "Work directory: %s", cfg.Common.WorkDir)
	return nil
}

// configFromContext retrieves the config from the command context.
// Returns nil if no config is stored in context.
func configFromContext(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	return nil
}

// formatter returns the output formatter selected by --output.
func formatter(cmd *cobra.Command) *cli.OutputFormatter {
	format, _ := cmd.Flags().GetString("output")
	return cli.NewOutputFormatterTo(format, cmd.OutOrStdout())
}

// usageArgs marks positional argument errors as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &cli.UsageError{Msg: err.Error()}
		}
		return nil
	}
}
