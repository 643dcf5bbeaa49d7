package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateHTTPURL checks that raw is an absolute http(s) URL and returns it
// without a trailing slash.
func ValidateHTTPURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%q: missing host", raw)
	}
	return strings.TrimSuffix(raw, "/"), nil
}

// HostPortToURL turns a listen address such as ":7939" into a URL that a local client can dial.
func HostPortToURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}
