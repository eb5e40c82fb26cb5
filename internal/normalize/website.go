package normalize

import (
	"net/url"
	"strings"
)

// MaxWebsiteLen bounds stored website URLs; the centers table column is
// VARCHAR(255)-equivalent.
const MaxWebsiteLen = 255

// SanitizeWebsite bounds a website URL to MaxWebsiteLen. Overlong URLs are
// canonicalized to scheme://host/path, dropping query and fragment; if the
// result is still too long it is hard-truncated. The second return reports
// whether the value was shortened, so callers can log the event instead of
// dropping it silently.
func SanitizeWebsite(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) <= MaxWebsiteLen {
		return raw, false
	}

	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		scheme := u.Scheme
		if scheme == "" {
			scheme = "https"
		}
		short := scheme + "://" + u.Host + u.Path
		if len(short) <= MaxWebsiteLen {
			return short, true
		}
		raw = short
	}

	return raw[:MaxWebsiteLen], true
}
