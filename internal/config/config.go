// Package config provides configuration management for the Terrain MCP
// server. It supports loading configuration from environment variables, YAML
// config files, and command-line flags with proper precedence handling.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the production Terrain endpoint.
const DefaultBaseURL = "https://de.cyverse.org/terrain"

// Config holds the configuration for the Terrain MCP server.
type Config struct {
	// BaseURL is the base URL of the Terrain service
	BaseURL string `yaml:"base_url"`

	// Token is a pre-obtained bearer token for authentication
	Token string `yaml:"token"`

	// Username for the basic-auth token exchange
	Username string `yaml:"username"`

	// Password for the basic-auth token exchange
	Password string `yaml:"password"`

	// LogLevel controls the logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogJSON forces JSON-formatted logging output; when false the format
	// is picked from whether stderr is a terminal
	LogJSON bool `yaml:"log_json"`

	// MetricsAddr is the address for the metrics endpoint (empty = disabled)
	MetricsAddr string `yaml:"metrics_addr"`

	// ConfigFile is the path to the YAML config file
	ConfigFile string `yaml:"-"`

	// PollInterval is the interval for polling analysis status (in seconds)
	PollInterval int `yaml:"poll_interval"`

	// SubmitPause is the pause between consecutive batch submissions
	// (in seconds)
	SubmitPause int `yaml:"submit_pause"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      DefaultBaseURL,
		LogLevel:     "info",
		LogJSON:      false,
		MetricsAddr:  "",
		PollInterval: 5,
		SubmitPause:  0,
	}
}

// FromEnv loads configuration from environment variables. Returns nil if no
// Terrain environment variables are set.
func FromEnv() *Config {
	baseURL := os.Getenv("TERRAIN_BASE_URL")
	if baseURL == "" && os.Getenv("TERRAIN_TOKEN") == "" && os.Getenv("TERRAIN_USERNAME") == "" {
		return nil
	}

	cfg := &Config{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		Token:       os.Getenv("TERRAIN_TOKEN"),
		Username:    os.Getenv("TERRAIN_USERNAME"),
		Password:    os.Getenv("TERRAIN_PASSWORD"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}

	if logJSON := os.Getenv("LOG_JSON"); logJSON == "true" || logJSON == "1" {
		cfg.LogJSON = true
	}

	return cfg
}

// FromFile loads configuration from a YAML file.
func FromFile(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	// Expand home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // File doesn't exist, not an error
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return cfg, nil
}

// Load loads configuration with proper precedence:
// CLI flags (via cfg parameter) > environment variables > config file > defaults
func Load(cfg *Config) (*Config, error) {
	// Start with defaults
	result := DefaultConfig()

	// Try to load from config file if specified
	if cfg != nil && cfg.ConfigFile != "" {
		fileCfg, err := FromFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		if fileCfg != nil {
			result = mergeConfigs(result, fileCfg)
		}
	} else {
		// Try default config locations
		for _, defaultPath := range []string{
			"~/.terrain-mcp.yaml",
			"~/.config/terrain-mcp/config.yaml",
		} {
			fileCfg, err := FromFile(defaultPath)
			if err != nil {
				return nil, err
			}
			if fileCfg != nil {
				result = mergeConfigs(result, fileCfg)
				break
			}
		}
	}

	// Load from environment variables
	envCfg := FromEnv()
	if envCfg != nil {
		result = mergeConfigs(result, envCfg)
	}

	// Apply CLI flags (highest precedence)
	if cfg != nil {
		result = mergeConfigs(result, cfg)
	}

	// Validate the final configuration
	if err := result.Validate(); err != nil {
		return nil, err
	}

	return result, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("TERRAIN_BASE_URL is required")
	}

	// Must have either a token or username+password
	hasToken := c.Token != ""
	hasCredentials := c.Username != "" && c.Password != ""

	if !hasToken && !hasCredentials {
		return errors.New("either TERRAIN_TOKEN or TERRAIN_USERNAME+TERRAIN_PASSWORD must be provided")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	if c.SubmitPause < 0 {
		return fmt.Errorf("submit_pause must not be negative, got %d", c.SubmitPause)
	}

	return nil
}

// mergeConfigs merges two configs, with values from 'override' taking
// precedence. Only non-zero values from 'override' are used.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.BaseURL != "" {
		result.BaseURL = override.BaseURL
	}
	if override.Token != "" {
		result.Token = override.Token
	}
	if override.Username != "" {
		result.Username = override.Username
	}
	if override.Password != "" {
		result.Password = override.Password
	}
	if override.LogLevel != "" {
		result.LogLevel = override.LogLevel
	}
	if override.LogJSON {
		result.LogJSON = override.LogJSON
	}
	if override.MetricsAddr != "" {
		result.MetricsAddr = override.MetricsAddr
	}
	if override.ConfigFile != "" {
		result.ConfigFile = override.ConfigFile
	}
	if override.PollInterval > 0 {
		result.PollInterval = override.PollInterval
	}
	if override.SubmitPause > 0 {
		result.SubmitPause = override.SubmitPause
	}

	return &result
}
