// Package config loads binpatch settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"binpatch/internal/integrity"
	"binpatch/internal/patch"
)

const (
	envVarPrefix = "BINPATCH"

	// ConfigName is the base name searched for when no file is given.
	ConfigName = "binpatch"
)

// PatternConfig is a pattern as written in the config file, with byte
// strings in hex.
type PatternConfig struct {
	ID          string `mapstructure:"id" json:"id" jsonschema:"title=ID,description=Unique pattern identifier"`
	Signature   string `mapstructure:"signature" json:"signature" jsonschema:"title=Signature,description=Hex bytes to search for (e.g. 84 C0 0F 84)"`
	Replacement string `mapstructure:"replacement" json:"replacement" jsonschema:"title=Replacement,description=Hex bytes written over each match; same length as signature"`
	Description string `mapstructure:"description" json:"description,omitempty" jsonschema:"title=Description"`
}

// Layout describes the build directory around the target.
type Layout struct {
	// Paths, relative to the target's directory, that must exist before patching.
	Required []string `mapstructure:"required" json:"required,omitempty" jsonschema:"title=Required paths"`
	// Directory names reported when present next to the target.
	Markers []string `mapstructure:"markers" json:"markers,omitempty" jsonschema:"title=Marker directories"`
}

// Config contains every option of a binpatch run.
type Config struct {
	// Suffix appended to the target path for its backup.
	BackupSuffix string `mapstructure:"backup_suffix" json:"backup_suffix,omitempty" jsonschema:"title=Backup suffix,default=.backup"`
	// Architecture used to describe patch sites: amd64, 386 or arm64. Empty means detect.
	Arch string `mapstructure:"arch" json:"arch,omitempty" jsonschema:"title=Architecture,enum=amd64,enum=386,enum=arm64"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level" json:"log_level,omitempty" jsonschema:"title=Log level"`
	// Path of the sqlite run ledger. Blank disables it.
	History string `mapstructure:"history" json:"history,omitempty" jsonschema:"title=History database"`
	// Write a patch notes file next to the target after a real run.
	Notes bool `mapstructure:"notes" json:"notes,omitempty" jsonschema:"title=Write patch notes"`
	// Keep the built-in patterns ahead of the configured ones.
	IncludeDefaults bool `mapstructure:"include_defaults" json:"include_defaults" jsonschema:"title=Include built-in patterns,default=true"`

	Layout   Layout          `mapstructure:"layout" json:"layout,omitempty"`
	Patterns []PatternConfig `mapstructure:"patterns" json:"patterns,omitempty"`

	source string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backup_suffix", integrity.DefaultBackupSuffix)
	v.SetDefault("arch", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("history", "")
	v.SetDefault("notes", false)
	v.SetDefault("include_defaults", true)
	v.SetDefault("layout.required", []string{})
	v.SetDefault("layout.markers", []string{})
}

// Load reads the config file at path, or, when path is empty, the first
// binpatch.yaml found in searchDirs. A missing default file is not an error.
// Every key can be overridden from the environment, e.g. BINPATCH_BACKUP_SUFFIX
// or BINPATCH_LAYOUT_REQUIRED.
func Load(path string, searchDirs ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if len(searchDirs) > 0 {
		v.SetConfigName(ConfigName)
		for _, dir := range searchDirs {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.source = v.ConfigFileUsed()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Source returns the config file that was read, or "".
func (c *Config) Source() string {
	return c.source
}

func (c *Config) validate() error {
	switch c.Arch {
	case "", "amd64", "386", "arm64":
	default:
		return fmt.Errorf("unsupported arch %q (want amd64, 386 or arm64)", c.Arch)
	}
	return nil
}

// Registry builds the pattern table for this config.
func (c *Config) Registry() (*patch.Registry, error) {
	var specs []patch.PatternSpec
	if c.IncludeDefaults || len(c.Patterns) == 0 {
		specs = append(specs, patch.DefaultPatterns()...)
	}

	for i, p := range c.Patterns {
		sig, err := patch.ParseHex(p.Signature)
		if err != nil {
			return nil, fmt.Errorf("patterns[%d] (%s) signature: %w", i, p.ID, err)
		}
		repl, err := patch.ParseHex(p.Replacement)
		if err != nil {
			return nil, fmt.Errorf("patterns[%d] (%s) replacement: %w", i, p.ID, err)
		}
		specs = append(specs, patch.PatternSpec{
			ID:          p.ID,
			Signature:   sig,
			Replacement: repl,
			Description: p.Description,
		})
	}

	return patch.NewRegistry(specs...)
}
