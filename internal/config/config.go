package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults applied when the config file omits a value.
const (
	DefaultPageSize = 20
)

// Config represents the global ~/.treesindia-chat/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	APIBaseURL     string `toml:"api_base_url"`
	Token          string `toml:"token"`
	UserID         int64  `toml:"user_id"`
	PageSize       int    `toml:"page_size"`
}

// Load reads config from the given path and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("config: api_base_url is required")
	}
	if c.Token == "" {
		return fmt.Errorf("config: token is required")
	}
	if c.UserID == 0 {
		return fmt.Errorf("config: user_id is required")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
