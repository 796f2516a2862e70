// Package config loads tailloop.yaml settings.
//
// Settings layer in order of increasing precedence: built-in defaults, the
// config file, TAILLOOP_* environment variables, command-line flags. The
// first three layers live here; flags are applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level tailloop.yaml configuration.
type Config struct {
	// Suffix is appended to the base name of rewritten files in write mode
	// (foo.py -> foo<suffix>.py). An empty suffix rewrites in place.
	Suffix string `yaml:"suffix"`

	// Report selects the report format: "text" or "yaml".
	Report string `yaml:"report,omitempty"`

	// Jobs is the number of parallel workers for directory mode.
	// 0 uses all CPUs.
	Jobs int `yaml:"jobs,omitempty"`

	// MaxFileSize skips files larger than this many bytes with a warning.
	// 0 disables the limit.
	MaxFileSize int64 `yaml:"max_file_size,omitempty"`

	// Color controls colored report output: "auto", "always", or "never".
	Color string `yaml:"color,omitempty"`

	// Skip lists function names that are analyzed but never rewritten.
	Skip []string `yaml:"skip,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Suffix:      "_transformed",
		Report:      "text",
		Jobs:        0,
		MaxFileSize: 1 << 20,
		Color:       "auto",
	}
}

// Load reads and parses a tailloop.yaml file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses tailloop.yaml content from bytes.
// The path argument is used only for error messages.
func Parse(data []byte, path string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfig searches for tailloop.yaml starting from dir and walking up
// to parent directories, similar to how .gitignore is found.
// Returns the path to the config file and nil error if found,
// or empty string and nil error if not found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, "tailloop.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		// Also check tailloop.yml (common alternative)
		candidate = filepath.Join(dir, "tailloop.yml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

// FromEnv applies TAILLOOP_* environment overrides on top of c.
func (c *Config) FromEnv() error {
	if env.Has("TAILLOOP_SUFFIX") {
		c.Suffix = env.Str("TAILLOOP_SUFFIX")
	}
	if env.Has("TAILLOOP_REPORT") {
		c.Report = env.Str("TAILLOOP_REPORT")
		if err := validReport(c.Report); err != nil {
			return fmt.Errorf("TAILLOOP_REPORT: %w", err)
		}
	}
	if env.Has("TAILLOOP_JOBS") {
		c.Jobs = env.Int("TAILLOOP_JOBS", c.Jobs)
		if c.Jobs < 0 {
			return fmt.Errorf("TAILLOOP_JOBS: negative worker count %d", c.Jobs)
		}
	}
	if env.Has("TAILLOOP_COLOR") {
		c.Color = env.Str("TAILLOOP_COLOR")
		if err := validColor(c.Color); err != nil {
			return fmt.Errorf("TAILLOOP_COLOR: %w", err)
		}
	}
	return nil
}

// SkipSet returns the skip list as a lookup set.
func (c *Config) SkipSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Skip))
	for _, name := range c.Skip {
		set[name] = struct{}{}
	}
	return set
}

// validate checks the configuration for semantic errors.
func (c *Config) validate(path string) error {
	if err := validReport(c.Report); err != nil {
		return fmt.Errorf("%s: report: %w", path, err)
	}
	if err := validColor(c.Color); err != nil {
		return fmt.Errorf("%s: color: %w", path, err)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("%s: jobs: negative worker count %d", path, c.Jobs)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("%s: max_file_size: negative size %d", path, c.MaxFileSize)
	}
	for i, name := range c.Skip {
		if name == "" {
			return fmt.Errorf("%s: skip[%d]: empty function name", path, i)
		}
	}
	return nil
}

func validReport(format string) error {
	switch format {
	case "text", "yaml":
		return nil
	}
	return fmt.Errorf("unknown format %q (want text or yaml)", format)
}

func validColor(mode string) error {
	switch mode {
	case "auto", "always", "never":
		return nil
	}
	return fmt.Errorf("unknown mode %q (want auto, always, or never)", mode)
}
