package drivesdk

import (
	"net/url"
	"strings"
)

const (
	DefaultBaseURL = "http://localhost:7938"
)

// Config is the configuration for the DriveSDK
type Config struct {
	BaseURL     string // BaseURL is required
	AccessToken string // AccessToken is optional
	// RetryCount applies to idempotent requests. Negative disables retries.
	RetryCount int
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidServerURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.RetryCount == 0 {
		c.RetryCount = 3
	}
	return nil
}
