package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/xmlpersist/internal/engine"
)

// ID generator names.
const (
	IDsUUID = "uuid"
	IDsULID = "ulid"
)

// Config describes a persistence setup.
type Config struct {
	// Mode is "shared" (one document) or "partitioned" (one per key).
	Mode engine.Mode `yaml:"mode"`

	// Path is the document of shared mode.
	Path string `yaml:"path,omitempty"`

	// Dir holds the per-key documents of partitioned mode.
	Dir string `yaml:"dir,omitempty"`

	// Template seeds new documents. Optional.
	Template string `yaml:"template,omitempty"`

	// Schema is a CUE vocabulary file or directory. Optional; without it
	// every tag gets the generic kind.
	Schema string `yaml:"schema,omitempty"`

	// Journal is the SQLite commit journal. Optional.
	Journal string `yaml:"journal,omitempty"`

	// IDs selects the transaction id generator: "uuid" (default) or "ulid".
	IDs string `yaml:"ids,omitempty"`

	Log LogConfig `yaml:"log,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error. Defaults to info.
	Level string `yaml:"level,omitempty"`
	// Format is text or json. Defaults to text.
	Format string `yaml:"format,omitempty"`
}

// Default returns a shared-mode config for the document at path.
func Default(path string) *Config {
	return &Config{Mode: engine.ModeShared, Path: path, IDs: IDsUUID}
}

// Load reads and validates a config file.
// Unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML without validating or resolving paths.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = engine.ModeShared
	}
	if cfg.IDs == "" {
		cfg.IDs = IDsUUID
	}
	return &cfg, nil
}

// resolve makes relative paths relative to base.
func (c *Config) resolve(base string) {
	for _, p := range []*string{&c.Path, &c.Dir, &c.Template, &c.Schema, &c.Journal} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate checks that the fields required by the mode are present.
func (c *Config) Validate() error {
	switch c.Mode {
	case engine.ModeShared:
		if c.Path == "" {
			return fmt.Errorf("path is required in shared mode")
		}
	case engine.ModePartitioned:
		if c.Dir == "" {
			return fmt.Errorf("dir is required in partitioned mode")
		}
	default:
		return fmt.Errorf("unknown mode %q (want shared or partitioned)", c.Mode)
	}

	switch c.IDs {
	case "", IDsUUID, IDsULID:
	default:
		return fmt.Errorf("unknown ids %q (want uuid or ulid)", c.IDs)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// DocumentPath returns the backing file used for key without opening it.
// In shared mode the key is ignored.
func (c *Config) DocumentPath(key string) (string, error) {
	if c.Mode == engine.ModeShared {
		return c.Path, nil
	}
	if key == "" || filepath.Base(key) != key || key == ".." {
		return "", fmt.Errorf("partition key %q is not a plain name", key)
	}
	return filepath.Join(c.Dir, key+".xml"), nil
}
