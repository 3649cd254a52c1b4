package engine

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the engine section of the config file.
type Config struct {
	Tool struct {
		Path         string                    `mapstructure:"path" yaml:"path"`
		Options      map[string]map[string]any `mapstructure:"options" yaml:"options,omitempty"`
		WallTimeout  time.Duration             `mapstructure:"wall_timeout" yaml:"wall_timeout"`
		StallTimeout time.Duration             `mapstructure:"stall_timeout" yaml:"stall_timeout"`
		Grace        time.Duration             `mapstructure:"grace" yaml:"grace"`
	} `mapstructure:"tool" yaml:"tool"`
	Retry struct {
		Max   int           `mapstructure:"max" yaml:"max"`
		Delay time.Duration `mapstructure:"delay" yaml:"delay"`
	} `mapstructure:"retry" yaml:"retry"`
	Janitor struct {
		Cron      string        `mapstructure:"cron" yaml:"cron,omitempty"`
		Every     time.Duration `mapstructure:"every" yaml:"every"`
		Retention string        `mapstructure:"retention" yaml:"retention"`
	} `mapstructure:"janitor" yaml:"janitor"`
	DownloadsDir string `mapstructure:"downloads_dir" yaml:"downloads_dir"`
	Credentials  struct {
		Dir string `mapstructure:"dir" yaml:"dir"`
		Key string `mapstructure:"key" yaml:"key,omitempty"`
	} `mapstructure:"credentials" yaml:"credentials"`
}

// ParseConfig unmarshals the engine config from the given viper key.
func ParseConfig(key string) (Config, error) {
	var cfg Config
	if err := viper.UnmarshalKey(key, &cfg); err != nil {
		return Config{}, err
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// WithDefaults fills unset fields with production defaults.
func (c Config) WithDefaults() Config {
	if c.Tool.Path == "" {
		c.Tool.Path = "gallery-dl"
	}
	if c.Tool.WallTimeout == 0 {
		c.Tool.WallTimeout = time.Hour
	}
	if c.Tool.StallTimeout == 0 {
		c.Tool.StallTimeout = 5 * time.Minute
	}
	if c.Tool.Grace == 0 {
		c.Tool.Grace = 5 * time.Second
	}
	if c.Retry.Max == 0 {
		c.Retry.Max = 3
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = 5 * time.Second
	}
	if c.Janitor.Every == 0 && c.Janitor.Cron == "" {
		c.Janitor.Every = time.Hour
	}
	if c.Janitor.Retention == "" {
		c.Janitor.Retention = "24h"
	}
	if c.DownloadsDir == "" {
		c.DownloadsDir = "downloads"
	}
	if c.Credentials.Dir == "" {
		c.Credentials.Dir = "credentials"
	}
	return c
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Janitor.Cron != "" {
		if err := ParseCron(c.Janitor.Cron); err != nil {
			return fmt.Errorf("parsing janitor.cron: %w", err)
		}
	}
	if _, err := c.RetentionAge(); err != nil {
		return fmt.Errorf("parsing janitor.retention: %w", err)
	}
	if c.Retry.Max < 0 {
		return fmt.Errorf("retry.max must be >= 0, got %d", c.Retry.Max)
	}
	return nil
}

// RetentionAge returns the parsed janitor retention window.
func (c Config) RetentionAge() (time.Duration, error) {
	return ParseRetention(c.Janitor.Retention)
}

// CredentialsKey decodes the base64 credentials key.
func (c Config) CredentialsKey() ([]byte, error) {
	if c.Credentials.Key == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.Credentials.Key)
	if err != nil {
		return nil, fmt.Errorf("decoding credentials.key: %w", err)
	}
	return key, nil
}
