// Package target provides broadcaster-identifier normalization and the
// on-disk list of targets the monitor engine watches.
package target

import (
	"fmt"
	"regexp"
	"strings"
)

// PrefixKind classifies the form of a raw target identifier.
type PrefixKind string

const (
	PrefixChannel   PrefixKind = "CHANNEL"
	PrefixGroup     PrefixKind = "GROUP"
	PrefixInstagram PrefixKind = "INSTAGRAM"
	PrefixFacebook  PrefixKind = "FACEBOOK"
	PrefixTwitter   PrefixKind = "TWITTER"
	PrefixRawURL    PrefixKind = "RAW_URL"
)

// Target is a logical broadcaster identifier, normalized to a canonical URL.
type Target struct {
	Raw          string
	CanonicalURL string
	Prefix       PrefixKind
}

// ErrInvalidURL is returned by Normalize when raw matches none of the
// recognized input forms (§6.1).
var ErrInvalidURL = fmt.Errorf("target: invalid url")

var (
	bareUsername = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	httpURL      = regexp.MustCompile(`(?i)^https?://`)
)

// Normalize converts a raw user-supplied identifier into a Target with its
// canonical HTTPS form. It is idempotent: Normalize(Normalize(x).CanonicalURL)
// returns the same canonical URL as Normalize(x).
func Normalize(raw string) (Target, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Target{}, ErrInvalidURL
	}

	switch {
	case httpURL.MatchString(trimmed):
		return normalizeExistingURL(raw, trimmed)
	case strings.HasPrefix(trimmed, "c:"):
		return buildTarget(raw, PrefixChannel, trimmed[2:], false)
	case strings.HasPrefix(trimmed, "g:"):
		return buildTarget(raw, PrefixGroup, trimmed, true)
	case strings.HasPrefix(trimmed, "ig:"):
		return buildTarget(raw, PrefixInstagram, trimmed, true)
	case strings.HasPrefix(trimmed, "f:"):
		return buildTarget(raw, PrefixFacebook, trimmed[2:], false)
	case strings.HasPrefix(trimmed, "tw:"):
		return buildTarget(raw, PrefixTwitter, trimmed[3:], false)
	case bareUsername.MatchString(trimmed):
		return buildTarget(raw, PrefixChannel, trimmed, false)
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
}

// buildTarget constructs the canonical URL for a prefixed or bare identifier.
// When keepPrefix is true the prefix (e.g. "g:", "ig:") is preserved in the
// path segment, per §6.1.
func buildTarget(raw string, kind PrefixKind, name string, keepPrefix bool) (Target, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	path := name
	if keepPrefix {
		path = name // already contains its own "g:"/"ig:" prefix
	}
	return Target{
		Raw:          raw,
		CanonicalURL: "https://twitcasting.tv/" + path,
		Prefix:       kind,
	}, nil
}

// normalizeExistingURL strips a trailing "/broadcaster" path segment and any
// trailing slash from an already-qualified http(s) URL and rewrites an
// http:// scheme to https://; the rest of the URL is kept as given.
func normalizeExistingURL(raw, trimmed string) (Target, error) {
	u := strings.TrimSuffix(trimmed, "/")
	u = strings.TrimSuffix(u, "/broadcaster")
	if u == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	// Force https scheme for the canonical form, preserving the rest of the URL.
	if strings.HasPrefix(strings.ToLower(u), "http://") {
		u = "https://" + u[len("http://"):]
	}
	return Target{
		Raw:          raw,
		CanonicalURL: u,
		Prefix:       PrefixRawURL,
	}, nil
}
