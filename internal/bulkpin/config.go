package bulkpin

import (
	"errors"
	"path"
	"time"
)

// Config controls a Manager.
type Config struct {
	// Root is the remote path of the synchronized tree. Files outside it are never pinned.
	Root string
	// CachePath is the local directory whose filesystem receives the pinned files.
	CachePath string

	BlockSize    int64
	SpaceMargin  int64
	ReapInterval time.Duration
	PageSize     int
	// MaxInflightPins bounds the pin requests awaiting a reply. Zero means PageSize.
	MaxInflightPins int
	// DryRun performs listing and the space check but pins nothing.
	DryRun bool

	Ignore *IgnoreList
}

func DefaultConfig() Config {
	return Config{
		Root:         "/",
		BlockSize:    DefaultBlockSize,
		SpaceMargin:  DefaultSpaceMargin,
		ReapInterval: DefaultReapInterval,
		PageSize:     DefaultPageSize,
	}
}

// Validate fills zero values with defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.Root == "" {
		c.Root = "/"
	}
	if !path.IsAbs(c.Root) {
		return errors.New("root must be an absolute remote path")
	}
	c.Root = path.Clean(c.Root)

	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.BlockSize < 0 {
		return errors.New("block size must be positive")
	}
	if c.SpaceMargin < 0 {
		return errors.New("space margin must not be negative")
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = DefaultReapInterval
	}
	if c.ReapInterval < 0 {
		return errors.New("reap interval must be positive")
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxInflightPins <= 0 {
		c.MaxInflightPins = c.PageSize
	}
	return nil
}
