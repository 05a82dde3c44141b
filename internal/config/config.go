// Package config loads odm settings from defaults, an odm.yaml file,
// ODM_ environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FileNames are the config files looked up when none is given.
var FileNames = []string{"odm.yaml", "odm.yml"}

// EnvPrefix prefixes environment overrides: ODM_SPECS_DIR -> specs_dir.
const EnvPrefix = "ODM_"

// Default configuration values.
const (
	DefaultSpecsDir   = "models"
	DefaultAdapter    = "memory"
	DefaultPrimaryKey = "id"
	DefaultLogLevel   = "info"
	DefaultFormat     = "text"
	DefaultSQLitePath = ":memory:"
)

// Config is the resolved configuration.
type Config struct {
	SpecsDir     string `koanf:"specs_dir"`
	Adapter      string `koanf:"adapter"`
	PrimaryKey   string `koanf:"primary_key"`
	StrictAssign bool   `koanf:"strict_assign"`
	LogLevel     string `koanf:"log_level"`
	Format       string `koanf:"format"`
	Verbose      bool   `koanf:"verbose"`
	SQLitePath   string `koanf:"sqlite_path"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

func defaults() map[string]any {
	return map[string]any{
		"specs_dir":     DefaultSpecsDir,
		"adapter":       DefaultAdapter,
		"primary_key":   DefaultPrimaryKey,
		"strict_assign": true,
		"log_level":     DefaultLogLevel,
		"format":        DefaultFormat,
		"verbose":       false,
		"sqlite_path":   DefaultSQLitePath,
	}
}

// Load resolves the configuration. cfgFile may be empty, in which case
// odm.yaml or odm.yml in the working directory is used when present. Only
// flags that were set on the command line override other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile returns the explicit path, which must exist, or the first
// default file name present in the working directory.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	for _, name := range FileNames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q (expected text or json)", c.Format)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.PrimaryKey == "" {
		return fmt.Errorf("primary_key must not be empty")
	}
	return nil
}

// Level parses LogLevel. Verbose forces debug.
func (c *Config) Level() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// ResolveSpecsDir returns dir, or SpecsDir when dir is empty. Relative
// configured paths are taken relative to the config file's directory.
func (c *Config) ResolveSpecsDir(dir string) string {
	if dir != "" {
		return dir
	}
	if c.File == "" || filepath.IsAbs(c.SpecsDir) {
		return c.SpecsDir
	}
	return filepath.Join(filepath.Dir(c.File), c.SpecsDir)
}
