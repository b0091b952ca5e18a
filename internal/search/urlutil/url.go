// Package urlutil canonicalizes URLs so equivalent forms compare equal.
package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// skippedExtensions lists asset suffixes that are never enqueued.
var skippedExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".ico": {}, ".css": {}, ".js": {}, ".zip": {}, ".gz": {}, ".tar": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".woff": {}, ".woff2": {},
	".ttf": {}, ".exe": {}, ".dmg": {}, ".iso": {},
}

// Normalize standardizes a URL to avoid frontier duplicates.
// It lowercases the scheme and host, removes default ports and
// fragments, strips a trailing slash from the path, and sorts query
// parameters.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q missing scheme or host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	}

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Host extracts the lowercase hostname (without port) of a URL.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return host, nil
}

// ResolveLink resolves href against base and normalizes the result.
// It returns false for links the crawler must not follow: non-http(s)
// schemes and binary asset extensions.
func ResolveLink(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	ext := strings.ToLower(path.Ext(abs.Path))
	if _, skip := skippedExtensions[ext]; skip {
		return "", false
	}
	normalized, err := Normalize(abs.String())
	if err != nil {
		return "", false
	}
	return normalized, true
}
