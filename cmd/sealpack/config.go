package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ConfigEnv names the config file when --config is not given.
const ConfigEnv = "SEALPACK_CONFIG"

// Config is the optional YAML configuration file. Flags override it.
type Config struct {
	// Workers bounds chunk and file parallelism. Zero uses GOMAXPROCS.
	Workers int `yaml:"workers"`

	// ChunkSize is the encoder chunk size, e.g. "64KiB".
	ChunkSize string `yaml:"chunk_size"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// RequireLicense refuses encode and decode until a license secret
	// and key are configured.
	RequireLicense bool `yaml:"require_license"`

	// LicenseSecret is the shared license secret. When empty, the
	// SEALPACK_LICENSE_SECRET environment variable is used.
	LicenseSecret string `yaml:"license_secret"`

	// LicenseKey is the license key.
	LicenseKey string `yaml:"license_key"`

	// CacheDir keeps blocks of remote archives between runs. Empty
	// disables the cache.
	CacheDir string `yaml:"cache_dir"`

	// CacheMaxSize bounds CacheDir, e.g. "512MiB". Empty is unlimited.
	CacheMaxSize string `yaml:"cache_max_size"`

	// Registry configures push, pull and oci:// archive references.
	Registry RegistryConfig `yaml:"registry"`
}

// RegistryConfig holds OCI registry access settings.
type RegistryConfig struct {
	// PlainHTTP talks to registries without TLS.
	PlainHTTP bool `yaml:"plain_http"`

	// DockerConfig reads credentials from the Docker config file.
	DockerConfig bool `yaml:"docker_config"`

	// Username and Password authenticate to every registry addressed.
	// They take precedence over DockerConfig.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadConfig reads path. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{LogLevel: "warn"}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if _, err := c.chunkBytes(); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	if _, err := c.cacheBytes(); err != nil {
		return err
	}
	if c.Registry.Password != "" && c.Registry.Username == "" {
		return fmt.Errorf("registry.password requires registry.username")
	}
	return nil
}

// chunkBytes parses ChunkSize. Zero means the library default.
func (c *Config) chunkBytes() (int, error) {
	if c.ChunkSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("chunk_size: %w", err)
	}
	if n == 0 || n > 1<<30 {
		return 0, fmt.Errorf("chunk_size %s out of range (1B..1GiB)", c.ChunkSize)
	}
	return int(n), nil
}

// cacheBytes parses CacheMaxSize. Zero means unlimited.
func (c *Config) cacheBytes() (int64, error) {
	if c.CacheMaxSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.CacheMaxSize)
	if err != nil {
		return 0, fmt.Errorf("cache_max_size: %w", err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("cache_max_size %s out of range", c.CacheMaxSize)
	}
	return int64(n), nil
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
