package util

import (
	"errors"
	"net/url"
	"strings"
)

// IsRedirectSafe validates that a post-login redirect target stays on this service.
// It only allows:
// 1. Relative references that are not protocol-relative ("//host")
// 2. Absolute URLs with the same scheme and host as baseURL
//
// Browsers strip control characters and leading spaces and read a backslash as "/",
// so any of those makes the target unsafe.
func IsRedirectSafe(redirectURL, baseURL string) bool {
	// Empty redirect is safe (will use default)
	if redirectURL == "" {
		return true
	}

	if strings.TrimSpace(redirectURL) != redirectURL || strings.Contains(redirectURL, "\\") {
		return false
	}
	for _, r := range redirectURL {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	if strings.HasPrefix(redirectURL, "/") {
		// Reject protocol-relative URLs like "//evil.com"
		return !strings.HasPrefix(redirectURL, "//")
	}

	parsedRedirect, err := url.Parse(redirectURL)
	if err != nil {
		return false
	}

	// Plain relative path such as "dashboard?x=1"
	if parsedRedirect.Scheme == "" && parsedRedirect.Host == "" && parsedRedirect.Opaque == "" {
		return true
	}

	// "http:evil.com" and "https:/evil.com" have a scheme but no host; a
	// browser resolves them against the scheme, so the host must be explicit.
	if parsedRedirect.Opaque != "" || parsedRedirect.Host == "" {
		return false
	}

	parsedBase, err := url.Parse(baseURL)
	if err != nil || parsedBase.Host == "" {
		return false
	}
	return strings.EqualFold(parsedRedirect.Scheme, parsedBase.Scheme) &&
		strings.EqualFold(parsedRedirect.Host, parsedBase.Host)
}

// ValidateRedirectURI checks a client redirect URI at registration time.
// RFC 6749 section 3.1.2 requires an absolute URI without a fragment.
func ValidateRedirectURI(raw string) error {
	if raw == "" || strings.ContainsAny(raw, "\r\n, ") {
		return errors.New("redirect URI must be a single non-empty URI")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("redirect URI must use http or https")
	}
	if u.Host == "" {
		return errors.New("redirect URI must be absolute")
	}
	if u.Fragment != "" {
		return errors.New("redirect URI must not contain a fragment")
	}
	return nil
}
