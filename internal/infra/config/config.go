// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AppName names the application's data and music subdirectories.
const AppName = "saavnbox"

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Player    PlayerConfig    `yaml:"player"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Favorites FavoritesConfig `yaml:"favorites"`
	Download  DownloadConfig  `yaml:"download"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // Control token; empty disables the check
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig lists shell commands run around the server lifetime.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlayerConfig represents playback configuration.
type PlayerConfig struct {
	Mode           string `yaml:"mode" default:"sequential" validate:"oneof=sequential shuffle repeat_one"`
	Output         string `yaml:"output" default:"clock" validate:"oneof=clock speaker"`
	TickIntervalMs int    `yaml:"tick_interval_ms" default:"500" validate:"gte=50,lte=10000"`
	EventBuffer    int    `yaml:"event_buffer" default:"64" validate:"gte=1"`
	MaxSourceBytes int64  `yaml:"max_source_bytes" default:"67108864" validate:"gte=1024"`
}

// CatalogConfig represents catalog provider configuration.
type CatalogConfig struct {
	PlaylistPageSize int              `yaml:"playlist_page_size" default:"100" validate:"gte=1,lte=100"`
	SearchLimit      int              `yaml:"search_limit" default:"10" validate:"gte=1,lte=50"`
	Providers        []ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
}

// ProviderConfig represents a single catalog provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// FavoritesConfig represents favorites persistence configuration.
type FavoritesConfig struct {
	DBPath string `yaml:"db_path"` // Defaults to the XDG data directory
}

// DownloadConfig represents download configuration.
type DownloadConfig struct {
	Dir          string `yaml:"dir"` // Defaults to the XDG music directory
	MaxBytes     int64  `yaml:"max_bytes" default:"209715200" validate:"gte=1024"`
	TimeoutSec   int    `yaml:"timeout_sec" default:"120" validate:"gte=1,lte=3600"`
	RetentionMin int    `yaml:"retention_min" default:"60" validate:"gte=1"` // How long finished tasks stay listed
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Output     string `yaml:"output" default:"stdout"`
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"50" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"28" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from a YAML file. An empty path loads defaults only.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	if len(cfg.Catalog.Providers) == 0 {
		cfg.Catalog.Providers = []ProviderConfig{{Type: "saavn", DisplayName: "JioSaavn"}}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := cfg.setPathDefaults(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SAAVNBOX_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("SAAVNBOX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.setProviderSetting("spotify", "client_id", v)
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.setProviderSetting("spotify", "client_secret", v)
	}
	if v := os.Getenv("SAAVN_BASE_URL"); v != "" {
		c.setProviderSetting("saavn", "base_url", v)
	}
}

// setProviderSetting sets a setting on the first provider of the given type.
func (c *Config) setProviderSetting(providerType, key string, value any) {
	for i := range c.Catalog.Providers {
		if c.Catalog.Providers[i].Type != providerType {
			continue
		}
		if c.Catalog.Providers[i].Settings == nil {
			c.Catalog.Providers[i].Settings = make(map[string]any)
		}
		c.Catalog.Providers[i].Settings[key] = value
		return
	}
}

// setPathDefaults fills file locations from the XDG base directories.
func (c *Config) setPathDefaults() error {
	if c.Favorites.DBPath == "" {
		p, err := xdg.DataFile(filepath.Join(AppName, "favorites.db"))
		if err != nil {
			return errors.Wrap(err, "failed to resolve favorites database path")
		}
		c.Favorites.DBPath = p
	}
	if c.Download.Dir == "" {
		c.Download.Dir = filepath.Join(xdg.UserDirs.Music, AppName)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Logging.Output != "stdout" && c.Logging.Output != "stderr" && c.Logging.Output != "" && c.Logging.File == "" {
		return errors.Newf("logging.file is required when logging.output is %q", c.Logging.Output)
	}

	return nil
}

// TickInterval returns the position report interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Player.TickIntervalMs) * time.Millisecond
}

// DownloadRetention returns how long finished download tasks are kept.
func (c *Config) DownloadRetention() time.Duration {
	return time.Duration(c.Download.RetentionMin) * time.Minute
}

// DownloadTimeout returns the per-download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSec) * time.Second
}
