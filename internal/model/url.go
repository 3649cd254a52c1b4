package model

import (
	"fmt"
	"net/url"
)

// ValidateURL rejects input which cannot name a fetch target. A job is
// only ever created for a url with both a scheme and a host.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: missing scheme or host: %q", ErrInvalidURL, raw)
	}
	return nil
}
