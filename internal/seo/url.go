package seo

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so the visited set and caches treat
// equivalent forms as one. It lowercases the scheme and host, removes
// default ports, drops the fragment, sorts query parameters, and trims a
// trailing slash from the path.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}

// Domain extracts the lowercase host of a URL with any leading "www."
// stripped, so www and bare forms compare equal.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	if h := u.Hostname(); h != "" {
		host = strings.ToLower(h)
		if port := u.Port(); port != "" {
			host = host + ":" + port
		}
	}
	return strings.TrimPrefix(host, "www.")
}

// SameDomain reports whether the URL belongs to baseDomain, treating "www."
// as equivalent to the bare domain. baseDomain is expected in stripped form.
func SameDomain(rawURL, baseDomain string) bool {
	d := Domain(rawURL)
	return d != "" && d == strings.TrimPrefix(strings.ToLower(baseDomain), "www.")
}
