package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/openmined/bulkpin/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".bulkpin")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultCacheDir    = filepath.Join(DefaultConfigDir, "cache")
	DefaultIgnorePath  = filepath.Join(DefaultConfigDir, "pinignore")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "bulkpin.log")
	DefaultServerURL   = "http://localhost:7938"
	DefaultStatusAddr  = "127.0.0.1:7939"
	DefaultRoot        = "/"
)

type Config struct {
	ServerURL   string `json:"server_url"`
	AccessToken string `json:"access_token,omitempty"`

	// CacheDir is the local directory the drive keeps pinned files in.
	CacheDir string `json:"cache_dir"`

	// Root is the remote folder to pin, "/" for the whole drive.
	Root        string   `json:"root"`
	StatusAddr  string   `json:"status_addr"`
	StatusToken string   `json:"status_token,omitempty"`
	IgnoreFile  string   `json:"ignore_file,omitempty"`
	Ignore      []string `json:"ignore,omitempty"`

	// Include limits pinning to paths matching one of these globs.
	Include []string `json:"include,omitempty"`

	SpaceMargin     int64 `json:"space_margin,omitempty"`
	PageSize        int   `json:"page_size,omitempty"`
	MaxInflightPins int   `json:"max_inflight_pins,omitempty"`

	DryRun bool   `json:"-"`
	Path   string `json:"-"`
}

func (c *Config) Validate() error {
	var err error

	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.ServerURL, err = utils.ValidateHTTPURL(c.ServerURL); err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}

	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.CacheDir, err = utils.ResolvePath(c.CacheDir); err != nil {
		return fmt.Errorf("invalid cache dir: %w", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
	}

	if c.IgnoreFile != "" {
		if c.IgnoreFile, err = utils.ResolvePath(c.IgnoreFile); err != nil {
			return fmt.Errorf("invalid ignore file: %w", err)
		}
	}

	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if !strings.HasPrefix(c.Root, "/") {
		return fmt.Errorf("invalid root %q: must be an absolute remote path", c.Root)
	}

	if c.StatusAddr == "" {
		c.StatusAddr = DefaultStatusAddr
	}

	if c.SpaceMargin < 0 || c.PageSize < 0 || c.MaxInflightPins < 0 {
		return errors.New("space_margin, page_size and max_inflight_pins must not be negative")
	}

	return nil
}

func (c *Config) Save() error {
	if c.Path == "" {
		return errors.New("config path not set")
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.Path, data, 0o600)
}

func LoadClientConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Path = path

	return &cfg, nil
}
