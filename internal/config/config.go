package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBufferSize matches the platform's standard I/O buffer (BUFSIZ).
	DefaultBufferSize = 8192
	// DefaultMaxMemberSize caps a single member read at 1 GiB.
	DefaultMaxMemberSize uint64 = 1 << 30
	// DefaultManifestName is the compiled manifest member of an APK.
	DefaultManifestName = "AndroidManifest.xml"
)

type Config struct {
	BufferSize    int    `yaml:"buffer_size"`
	MaxMemberSize uint64 `yaml:"max_member_size"`
	ManifestName  string `yaml:"manifest_name"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
}

func DefaultConfig() *Config {
	return &Config{
		BufferSize:    DefaultBufferSize,
		MaxMemberSize: DefaultMaxMemberSize,
		ManifestName:  DefaultManifestName,
		LogLevel:      "warn",
		LogFormat:     "auto",
	}
}

// ConfigPath returns ~/.apkpatch/config.yaml.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".apkpatch", "config.yaml"), nil
}

// Load reads the config file, falling back to defaults for a missing file
// and for any field the file leaves out.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects values the archive engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize))
	}
	if c.MaxMemberSize == 0 {
		errs = append(errs, fmt.Errorf("max_member_size must be positive, got %d", c.MaxMemberSize))
	}
	if strings.TrimSpace(c.ManifestName) == "" {
		errs = append(errs, errors.New("manifest_name must not be empty"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be auto, text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %s: %w", path, err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
