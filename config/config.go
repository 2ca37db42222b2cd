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

// Package config loads the global stratum configuration. Values come from,
// in decreasing priority: command line flags, STRATUM_* environment
// variables, config.yaml and built-in defaults.
package config

import (
	"path/filepath"
	"strings"

	"github.com/cowdogmoo/stratum/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the global configuration. It holds user and environment
// preferences, never image descriptor content.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Common    CommonConfig    `mapstructure:"common"`
	Build     BuildConfig     `mapstructure:"build"`
	OSBS      OSBSConfig      `mapstructure:"osbs"`
	Integrity IntegrityConfig `mapstructure:"integrity"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CommonConfig holds settings shared by every command.
type CommonConfig struct {
	WorkDir string `mapstructure:"work_dir"`
	// CacheURL is the cache-proxy template. #filename#, #algorithm# and
	// #hash# are substituted per artifact.
	CacheURL string `mapstructure:"cache_url"`
	Redhat   bool   `mapstructure:"redhat"`
}

type BuildConfig struct {
	Engine     string   `mapstructure:"engine"`
	Target     string   `mapstructure:"target"`
	Tags       []string `mapstructure:"tags"`
	EngineArgs string   `mapstructure:"engine_args"`
	NoSquash   bool     `mapstructure:"no_squash"`
	Pull       bool     `mapstructure:"pull"`
}

type OSBSConfig struct {
	User       string `mapstructure:"user"`
	KojiTarget string `mapstructure:"koji_target"`
	Stage      bool   `mapstructure:"stage"`
	Nowait     bool   `mapstructure:"nowait"`
}

// IntegrityConfig carries the global escape hatch for checksum checks.
type IntegrityConfig struct {
	Disabled bool `mapstructure:"disabled"`
}

// CacheDir is the artifact cache directory under the work dir.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Common.WorkDir, "cache")
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"work-dir":     "common.work_dir",
	"cache-url":    "common.cache_url",
	"redhat":       "common.redhat",
	"engine":       "build.engine",
	"target":       "build.target",
	"tag":          "build.tags",
	"engine-args":  "build.engine_args",
	"no-squash":    "build.no_squash",
	"pull":         "build.pull",
	"user":         "osbs.user",
	"koji-target":  "osbs.koji_target",
	"stage":        "osbs.stage",
	"nowait":       "osbs.nowait",
	"no-integrity": "integrity.disabled",
}

// Load searches the standard locations for config.yaml. A missing file is
// not an error. Flags present in fs override every other source.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := newViper()
	v.SetConfigName(defaultConfigFileName)
	v.SetConfigType("yaml")
	for _, dir := range ConfigDirs() {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil && !IsNotFoundError(err) {
		return nil, errors.Wrap("read config", v.ConfigFileUsed(), err)
	}

	return finish(v, fs)
}

// LoadFromPath reads the config file at path, which must exist.
func LoadFromPath(path string, fs *pflag.FlagSet) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap("read config", path, err)
	}

	return finish(v, fs)
}

// IsNotFoundError reports whether err means no config file was found.
func IsNotFoundError(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STRATUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)
	return v
}

func finish(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrap("bind flag", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap("decode config", "", err)
	}

	cfg.Common.WorkDir = ExpandPath(cfg.Common.WorkDir)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")

	v.SetDefault("common.work_dir", DefaultWorkDir())
	v.SetDefault("common.cache_url", "")
	v.SetDefault("common.redhat", false)

	v.SetDefault("build.engine", "docker")
	v.SetDefault("build.target", "target")
	v.SetDefault("build.tags", []string{})
	v.SetDefault("build.engine_args", "")
	v.SetDefault("build.no_squash", false)
	v.SetDefault("build.pull", false)

	v.SetDefault("osbs.user", "")
	v.SetDefault("osbs.koji_target", "")
	v.SetDefault("osbs.stage", false)
	v.SetDefault("osbs.nowait", false)

	v.SetDefault("integrity.disabled", false)
}

// bindEnvVars binds the documented variables explicitly so they resolve
// even for keys Unmarshal would not otherwise look up.
func bindEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		env := "STRATUM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, env)
	}
}
