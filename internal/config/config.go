// Package config provides configuration loading and structs for the eval-ui review server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogFile   string          `yaml:"log_file"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Documents DocumentsConfig `yaml:"documents"`
	Review    ReviewConfig    `yaml:"review"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Backend      string `yaml:"backend" validate:"oneof=sqlite memory redis"`
	DatabasePath string `yaml:"database_path" validate:"required_if=Backend sqlite"`
	RedisURL     string `yaml:"redis_url" validate:"required_if=Backend redis"`
	RedisPrefix  string `yaml:"redis_prefix"`
}

// DocumentsConfig describes where documents, transcripts and field files live.
type DocumentsConfig struct {
	Directory           string `yaml:"directory" validate:"required"`
	TranscriptDirectory string `yaml:"transcript_directory"`
	FieldsDirectory     string `yaml:"fields_directory"`
	Extension           string `yaml:"extension" validate:"required,startswith=."`
	TranscriptSuffix    string `yaml:"transcript_suffix" validate:"required"`
	FieldsSuffix        string `yaml:"fields_suffix" validate:"required"`
	Watch               *bool  `yaml:"watch"`
}

// WatchOrDefault returns whether to watch the document directory; defaults to true when unset.
func (d *DocumentsConfig) WatchOrDefault() bool {
	if d.Watch != nil {
		return *d.Watch
	}
	return true
}

// ReviewConfig holds annotation settings.
type ReviewConfig struct {
	Modes         []string `yaml:"modes" validate:"min=1,dive,oneof=indicator range"`
	SaveQueueSize int      `yaml:"save_queue_size" validate:"min=1"`
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, expands paths and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Documents.Directory = expandPath(cfg.Documents.Directory, configDir)
	if cfg.Documents.TranscriptDirectory != "" {
		cfg.Documents.TranscriptDirectory = expandPath(cfg.Documents.TranscriptDirectory, configDir)
	}
	if cfg.Documents.FieldsDirectory != "" {
		cfg.Documents.FieldsDirectory = expandPath(cfg.Documents.FieldsDirectory, configDir)
	}
	if cfg.LogFile != "" {
		cfg.LogFile = expandPath(cfg.LogFile, configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides settings from EVALUI_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("EVALUI_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("EVALUI_REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("EVALUI_DOCUMENTS_DIR"); v != "" {
		cfg.Documents.Directory = v
	}
	switch strings.ToLower(os.Getenv("EVALUI_DEBUG")) {
	case "1", "true", "yes":
		cfg.Debug = true
	case "0", "false", "no":
		cfg.Debug = false
	}
}

var validate = validator.New()

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
