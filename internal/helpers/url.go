package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"strings"
)

// Click-tracking parameters that make otherwise identical search results
// look distinct to the dedup pass.
var trackingParams = map[string]struct{}{
	"gclid":   {},
	"fbclid":  {},
	"msclkid": {},
	"igshid":  {},
	"ref":     {},
}

// NormalizeURL reduces a search-result URL to a comparable form: https when
// no scheme is given, lowercased host without default ports, cleaned path,
// no fragment, tracking parameters dropped and the rest sorted.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" && u.Host == "" {
		// search providers sometimes return "example.com/guide" or
		// "//example.com/guide"
		if strings.HasPrefix(raw, "//") {
			u, err = url.Parse("https:" + raw)
		} else {
			u, err = url.Parse("https://" + raw)
		}
		if err != nil {
			return "", err
		}
	}
	if u.Host == "" {
		return "", errors.New("url missing host")
	}

	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch u.Scheme {
	case "http":
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case "https":
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Path = path.Clean("/" + u.Path)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		k := strings.ToLower(key)
		if _, drop := trackingParams[k]; drop || strings.HasPrefix(k, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// URLFingerprint returns a stable digest of the normalized URL, used to
// deduplicate findings that point at the same page.
func URLFingerprint(raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}
