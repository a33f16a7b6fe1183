package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go-lora-manager/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL     = "http://127.0.0.1:8188"
	DefaultPageSize    = 20
	DefaultStoragePath = "lora_manager_storage"
	DefaultIndexPath   = "lora_manager.bleve"
	DefaultTimeoutSec  = 30
)

// ErrInvalidConfig wraps every validation failure returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults returns the configuration used when no file is present.
func Defaults() models.Config {
	return models.Config{
		BaseURL:             DefaultBaseURL,
		StoragePath:         DefaultStoragePath,
		IndexPath:           DefaultIndexPath,
		PageSize:            DefaultPageSize,
		DefaultModelType:    string(models.ModelTypeLora),
		ApiClientTimeoutSec: DefaultTimeoutSec,
	}
}

// LoadConfig reads the configuration from the specified path (defaulting to "config.toml").
// A missing file is not an error: defaults are returned. Fields absent from the file
// keep their default values.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}
	cfg := Defaults()
	if _, err := os.Stat(configFilePath); errors.Is(err, os.ErrNotExist) {
		log.Debugf("Config file %s not found, using defaults", configFilePath)
		return cfg, nil
	}
	if _, err := toml.DecodeFile(configFilePath, &cfg); err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return models.Config{}, err
	}

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		log.Warnf("PageSize %d is invalid, using %d", cfg.PageSize, DefaultPageSize)
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = DefaultTimeoutSec
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = DefaultStoragePath
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = DefaultIndexPath
	}
	if cfg.DefaultModelType == "" {
		cfg.DefaultModelType = string(models.ModelTypeLora)
	}
}

// Validate checks the fields the client cannot work without.
func Validate(cfg models.Config) error {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: BaseURL %q must be an absolute http(s) URL", ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.WebSocketURL != "" {
		wu, err := url.Parse(cfg.WebSocketURL)
		if err != nil || (wu.Scheme != "ws" && wu.Scheme != "wss") {
			return fmt.Errorf("%w: WebSocketURL %q must be a ws(s) URL", ErrInvalidConfig, cfg.WebSocketURL)
		}
	}
	if _, err := models.ParseModelType(cfg.DefaultModelType); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// WebSocketBase returns the ws(s):// origin for progress sockets.
func WebSocketBase(cfg models.Config) string {
	if cfg.WebSocketURL != "" {
		return strings.TrimRight(cfg.WebSocketURL, "/")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
