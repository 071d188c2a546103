package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/vinscan/internal/barcode"
	"github.com/MeKo-Tech/vinscan/internal/scanner"
	"github.com/MeKo-Tech/vinscan/internal/server"
	"github.com/MeKo-Tech/vinscan/internal/storage"
	"github.com/MeKo-Tech/vinscan/internal/utils"
)

// Config represents the complete configuration for vinscan. It covers the
// serve and scan commands and supports loading from configuration files,
// environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Artifact storage
	Storage StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`

	// Scan pipeline
	Scan ScanConfig `mapstructure:"scan" yaml:"scan" json:"scan"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// StorageConfig contains artifact storage settings.
type StorageConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir" json:"dir"`
	URLPrefix   string `mapstructure:"url_prefix" yaml:"url_prefix" json:"url_prefix"`
	JPEGQuality int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}

// ScanConfig contains barcode scan settings.
type ScanConfig struct {
	Margin    int      `mapstructure:"margin" yaml:"margin" json:"margin"`
	Workers   int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	TryHarder bool     `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
	Formats   []string `mapstructure:"formats" yaml:"formats" json:"formats"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     32,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
		},
		Storage: StorageConfig{
			Dir:         storage.DefaultDir,
			URLPrefix:   storage.DefaultURLPrefix,
			JPEGQuality: storage.DefaultQuality,
		},
		Scan: ScanConfig{
			Margin:    utils.DefaultMargin,
			Workers:   1,
			TryHarder: true,
			Formats:   []string{},
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}

	if strings.TrimSpace(c.Storage.Dir) == "" {
		return fmt.Errorf("invalid storage dir: must not be empty")
	}
	if c.Storage.JPEGQuality < 1 || c.Storage.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (must be between 1 and 100)", c.Storage.JPEGQuality)
	}

	if c.Scan.Margin < 0 {
		return fmt.Errorf("invalid scan margin: %d (must not be negative)", c.Scan.Margin)
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("invalid scan workers: %d (must be positive)", c.Scan.Workers)
	}
	if _, err := barcode.ParseFormats(c.Scan.Formats); err != nil {
		return fmt.Errorf("invalid scan formats: %w", err)
	}

	return nil
}

// ToScannerConfig converts the config to the scan pipeline configuration.
func (c *Config) ToScannerConfig() (scanner.Config, error) {
	formats, err := barcode.ParseFormats(c.Scan.Formats)
	if err != nil {
		return scanner.Config{}, err
	}
	return scanner.Config{
		Margin:    c.Scan.Margin,
		Workers:   c.Scan.Workers,
		Formats:   formats,
		TryHarder: c.Scan.TryHarder,
	}, nil
}

// ToServerConfig converts the config to the HTTP server configuration.
func (c *Config) ToServerConfig() (server.Config, error) {
	scanCfg, err := c.ToScannerConfig()
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		CORSOrigin:      c.Server.CORSOrigin,
		MaxUploadMB:     int64(c.Server.MaxUploadMB),
		TimeoutSec:      c.Server.TimeoutSec,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		UploadDir:       c.Storage.Dir,
		URLPrefix:       c.Storage.URLPrefix,
		JPEGQuality:     c.Storage.JPEGQuality,
		Scan:            scanCfg,
	}, nil
}
