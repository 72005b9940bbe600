// Package config handles TOML-based configuration loading and validation.
// TOML is parsed as data only; no code execution is possible.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"animewatch/internal/httputil"
)

const appName = "animewatch"

// Config holds all application configuration.
type Config struct {
	Base        string `toml:"base"`
	Player      string `toml:"player"`
	Quality     string `toml:"quality"`
	HistoryFile string `toml:"history_file"`
	CatalogFile string `toml:"catalog_file"`
	LogDir      string `toml:"log_dir"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	Fullscreen  bool   `toml:"fullscreen"`
	ExpandHLS   bool   `toml:"expand_hls"`
	Debug       bool   `toml:"debug"`
}

// Default returns the default configuration. Empty path fields resolve to
// XDG locations, see HistoryPath, CatalogPath and LogPath.
func Default() *Config {
	return &Config{
		Base:       "gogoanime3.net",
		Player:     "mpv",
		Quality:    "best",
		LogLevel:   "info",
		LogFormat:  "console",
		Fullscreen: true,
		ExpandHLS:  true,
		Debug:      false,
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// dataDir returns the XDG-compliant data directory.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	// Only mpv exposes the JSON IPC the playback session drives.
	player := strings.TrimSuffix(filepath.Base(c.Player), ".exe")
	if player != "mpv" {
		return fmt.Errorf("unsupported player %q (valid: mpv or a path to mpv)", c.Player)
	}

	validQualities := map[string]bool{
		"best": true, "worst": true, "360": true, "480": true, "720": true, "1080": true,
	}
	if !validQualities[strings.ToLower(c.Quality)] {
		return fmt.Errorf("unsupported quality %q (valid: best, worst, 360, 480, 720, 1080)", c.Quality)
	}

	if err := validateBase(c.Base); err != nil {
		return err
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("unsupported log level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("unsupported log format %q (valid: console, json)", c.LogFormat)
	}

	return nil
}

func validateBase(base string) error {
	if base == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if strings.Contains(base, "://") {
		if err := httputil.ValidateURL(base); err != nil {
			return fmt.Errorf("invalid base: %w", err)
		}
		return nil
	}
	if strings.ContainsAny(base, "/ \t?#") {
		return fmt.Errorf("invalid base host %q", base)
	}
	return nil
}

// expandPath resolves ~ in a configured path.
func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		p = filepath.Join(home, p[2:])
	}
	return filepath.Abs(p)
}

// resolve returns the configured path, or name inside the data directory.
func resolve(configured, name string) (string, error) {
	if configured != "" {
		return expandPath(configured)
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// HistoryPath returns the path to the watch history file.
func (c *Config) HistoryPath() (string, error) {
	return resolve(c.HistoryFile, "watched.json")
}

// CatalogPath returns the path to the title catalog database.
func (c *Config) CatalogPath() (string, error) {
	return resolve(c.CatalogFile, "catalog.db")
}

// LogPath returns the directory for log files.
func (c *Config) LogPath() (string, error) {
	return resolve(c.LogDir, "logs")
}
