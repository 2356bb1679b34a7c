package notifier

import (
	"fmt"
	"net/url"
	"strings"
)

// Protocol prefix constants for URL normalization
const (
	httpsPrefix   = "https://"
	httpPrefix    = "http://"
	genericPrefix = "generic+"
)

// BuildURL turns the --notify-url value into a shoutrrr URL. Service URLs such as
// "discord://token@id" pass through unchanged; a bare http(s) webhook is sent
// through shoutrrr's generic service.
func BuildURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("notification url is empty")
	}

	if strings.HasPrefix(rawURL, httpsPrefix) || strings.HasPrefix(rawURL, httpPrefix) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("invalid notification url: %w", err)
		}
		if u.Host == "" {
			return "", fmt.Errorf("invalid notification url %q: missing host", redact(rawURL))
		}
		return genericPrefix + rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid notification url: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("invalid notification url %q: missing service scheme", redact(rawURL))
	}
	return rawURL, nil
}

// redact keeps the scheme and host of a URL for error messages. Service URLs
// carry tokens in the user info and path.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "<redacted>"
	}
	return u.Scheme + "://" + u.Host
}
