package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
)

// LoadConfig reads the configuration from the specified path
// (defaulting to "config.toml") and returns the populated Config.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml" // Default path
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	if cfg.DownloadPath == "" {
		log.Warn("Warning: DownloadPath is not set in config.toml")
	}

	applyDefaults(&cfg)

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// applyDefaults fills in the operational defaults for values the file
// left unset.
func applyDefaults(cfg *models.Config) {
	if cfg.GroupPacingMs <= 0 {
		cfg.GroupPacingMs = 1000
	}
	if cfg.DocumentPacingMs <= 0 {
		cfg.DocumentPacingMs = 500
	}
	if cfg.CaptionRuneLimit <= 0 {
		cfg.CaptionRuneLimit = 1024
	}
	if cfg.FetchTimeoutSec <= 0 {
		cfg.FetchTimeoutSec = 600
	}
	if cfg.FetcherConcurrency <= 0 {
		cfg.FetcherConcurrency = 10
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = 60
	}
}

// Defaults returns a Config with every operational default applied,
// for callers running without a config file.
func Defaults() models.Config {
	cfg := models.Config{DownloadPath: "downloads-temp"}
	applyDefaults(&cfg)
	return cfg
}
