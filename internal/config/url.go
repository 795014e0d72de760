package config

import (
	"fmt"
	"net/url"
)

// hostFromURL extracts the host (for request headers and cookie scoping)
// from the configured base/search URL.
func hostFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return u.Host, nil
}
