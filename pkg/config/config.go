// Package config loads the tunables of a kernel instance.
//
// A configuration starts from Default, is overlaid by a YAML or JSONC file
// and finally by UKERNEL_* environment variables (optionally read from a
// .env file).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config: file not found")

// ErrUnsupportedFormat is returned for config files with an unknown extension.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UKERNEL_"

// Config holds the tunables of one kernel instance.
type Config struct {
	// MaxOpenFiles bounds the descriptor table of each process, including
	// the two standard streams.
	MaxOpenFiles int `yaml:"max_open_files" json:"max_open_files"`
	// MaxNameLength is the longest accepted file or image name.
	MaxNameLength int `yaml:"max_name_length" json:"max_name_length"`
	// MaxProcesses bounds the number of live processes. Zero means unlimited.
	MaxProcesses int `yaml:"max_processes" json:"max_processes"`
	// MaxArgBytes bounds the encoded size of an exec argument vector.
	MaxArgBytes int `yaml:"max_arg_bytes" json:"max_arg_bytes"`
	// ImageSuffix is required on every exec path. Empty disables the check.
	ImageSuffix string `yaml:"image_suffix" json:"image_suffix"`
	// Verbose enables per-syscall logging.
	Verbose bool `yaml:"verbose" json:"verbose"`
	// Files are installed in the file store at boot, name to content.
	Files map[string]string `yaml:"files,omitempty" json:"files,omitempty"`
}

// Default returns the configuration of the reference kernel: sixteen
// descriptor slots, 256 byte names, one page of exec arguments and
// ".coff" images.
func Default() *Config {
	return &Config{
		MaxOpenFiles:  16,
		MaxNameLength: 256,
		MaxProcesses:  0,
		MaxArgBytes:   1024,
		ImageSuffix:   ".coff",
	}
}

// Load reads the file at path over the defaults. The format is chosen by
// extension: .yaml and .yml use YAML, .json and .jsonc use JSON with
// comments and trailing commas allowed.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // path is user supplied on purpose
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrInvalidConfig, path, err)
		}
	case ".json", ".jsonc":
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("%w %s: invalid JSONC: %w", ErrInvalidConfig, path, err)
		}
		if err := json.Unmarshal(standardized, cfg); err != nil {
			return nil, fmt.Errorf("%w %s: invalid JSON: %w", ErrInvalidConfig, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadEnvFile reads KEY=value pairs from a .env file. A missing file yields
// an empty map.
func ReadEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return env, nil
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// MapLookup adapts a map to a LookupFunc that falls back to os.LookupEnv.
// Real environment variables win over the map, matching godotenv.Load.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := m[key]
		return v, ok
	}
}

// ApplyEnv overrides fields from UKERNEL_* variables resolved by lookup.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_OPEN_FILES", &c.MaxOpenFiles},
		{"MAX_NAME_LENGTH", &c.MaxNameLength},
		{"MAX_PROCESSES", &c.MaxProcesses},
		{"MAX_ARG_BYTES", &c.MaxArgBytes},
	}
	for _, f := range ints {
		v, ok := lookup(EnvPrefix + f.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q: %w", ErrInvalidConfig, EnvPrefix, f.key, v, err)
		}
		*f.dst = n
	}

	if v, ok := lookup(EnvPrefix + "IMAGE_SUFFIX"); ok {
		c.ImageSuffix = v
	}
	if v, ok := lookup(EnvPrefix + "VERBOSE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %sVERBOSE=%q: %w", ErrInvalidConfig, EnvPrefix, v, err)
		}
		c.Verbose = b
	}

	return c.Validate()
}

// Validate checks the configuration for values the kernel cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxOpenFiles < 3:
		return fmt.Errorf("%w: max_open_files must be at least 3, got %d", ErrInvalidConfig, c.MaxOpenFiles)
	case c.MaxNameLength < 1:
		return fmt.Errorf("%w: max_name_length must be positive, got %d", ErrInvalidConfig, c.MaxNameLength)
	case c.MaxProcesses < 0:
		return fmt.Errorf("%w: max_processes must not be negative, got %d", ErrInvalidConfig, c.MaxProcesses)
	case c.MaxArgBytes < 0:
		return fmt.Errorf("%w: max_arg_bytes must not be negative, got %d", ErrInvalidConfig, c.MaxArgBytes)
	}
	for name := range c.Files {
		if name == "" || len(name) > c.MaxNameLength {
			return fmt.Errorf("%w: preloaded file name %q", ErrInvalidConfig, name)
		}
	}
	return nil
}
