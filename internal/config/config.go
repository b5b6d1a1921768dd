// Package config loads server configuration from an optional YAML file,
// a .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

type Config struct {
	Addr     string         `yaml:"addr"`
	Database DatabaseConfig `yaml:"database"`
	Backup   BackupConfig   `yaml:"backup"`
}

type DatabaseConfig struct {
	// Type selects the backend: sqlite (default) or postgres.
	Type string `yaml:"type"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`
	// URL is the postgres connection string.
	URL string `yaml:"url"`
}

// BackupConfig drives the periodic S3 snapshot of the sqlite database.
type BackupConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Bucket    string        `yaml:"bucket"`
	Prefix    string        `yaml:"prefix"`
	Region    string        `yaml:"region"`
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Interval  time.Duration `yaml:"interval"`
}

func defaults() Config {
	return Config{
		Addr: ":8080",
		Database: DatabaseConfig{
			Type: DatabaseSQLite,
			Path: "./data/holdmymap.db",
		},
		Backup: BackupConfig{
			Prefix:   "snapshots",
			Interval: 6 * time.Hour,
		},
	}
}

// Load builds the configuration. A missing YAML file is an error only when
// its path was given explicitly; a missing .env is always fine.
func Load(path string) (Config, error) {
	godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DATABASE_TYPE"); v != "" {
		cfg.Database.Type = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("BACKUP_BUCKET"); v != "" {
		cfg.Backup.Enabled = true
		cfg.Backup.Bucket = v
	}
	if v := os.Getenv("BACKUP_REGION"); v != "" {
		cfg.Backup.Region = v
	}
	if v := os.Getenv("BACKUP_ENDPOINT"); v != "" {
		cfg.Backup.Endpoint = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Backup.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Backup.SecretKey = v
	}
	if v := os.Getenv("BACKUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backup.Interval = d
		}
	}
}

func (c *Config) validate() error {
	switch c.Database.Type {
	case DatabaseSQLite:
		if c.Database.Path == "" {
			return errors.New("database path required for sqlite")
		}
	case DatabasePostgres:
		if c.Database.URL == "" {
			return errors.New("database URL required for postgres (use DATABASE_URL)")
		}
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}

	if c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return errors.New("backup bucket required when backup is enabled")
		}
		if c.Database.Type != DatabaseSQLite {
			return errors.New("backup snapshots require the sqlite backend")
		}
		if c.Backup.Interval <= 0 {
			return errors.New("backup interval must be positive")
		}
	}
	return nil
}
