package importapi

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/ebookimport/chapterpipe"
	"github.com/hazyhaar/ebookimport/horosafe"
)

// Config holds the service configuration.
type Config struct {
	Listen        string             `yaml:"listen"`
	LogLevel      string             `yaml:"log_level"`
	DBPath        string             `yaml:"db_path"`
	BlobDir       string             `yaml:"blob_dir"`        // empty disables upload storage
	PublicBaseURL string             `yaml:"public_base_url"` // prefix of returned source_url
	JWTSecret     string             `yaml:"jwt_secret"`
	MaxUploadMB   int                `yaml:"max_upload_mb"`
	ShutdownGrace time.Duration      `yaml:"shutdown_grace"`
	AuditDays     int                `yaml:"audit_retention_days"`
	Pipeline      chapterpipe.Config `yaml:"pipeline"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8080",
		LogLevel:      "info",
		DBPath:        "data/ebookimport.db",
		PublicBaseURL: "http://localhost:8080/blobs",
		MaxUploadMB:   100,
		ShutdownGrace: 10 * time.Second,
		AuditDays:     90,
	}
}

// LoadConfig returns DefaultConfig merged with the YAML file at path (when
// path is non-empty) and with environment overrides. It does not validate.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from PORT, LOG_LEVEL, JWT_SECRET, DB_PATH,
// BLOB_DIR and PUBLIC_BASE_URL when set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		c.Listen = ":" + strings.TrimPrefix(v, ":")
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := getenv("BLOB_DIR"); v != "" {
		c.BlobDir = v
	}
	if v := getenv("PUBLIC_BASE_URL"); v != "" {
		c.PublicBaseURL = v
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen is required")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("max_upload_mb must be > 0")
	}
	if err := horosafe.ValidateSecret([]byte(c.JWTSecret)); err != nil {
		return fmt.Errorf("jwt_secret: %w", err)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level %q (use debug, info, warn or error)", c.LogLevel)
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// PipelineConfig returns the pipeline settings with the upload limit applied.
func (c *Config) PipelineConfig() chapterpipe.Config {
	pc := c.Pipeline
	if pc.MaxFileSize <= 0 {
		pc.MaxFileSize = c.MaxUploadBytes()
	}
	return pc
}
