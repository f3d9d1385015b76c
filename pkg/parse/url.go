// Package parse splits crawl targets into the pieces the politeness layer keys on.
package parse

import (
	"strings"
)

// SplitURL returns the domain and path of rawURL without fully parsing it, so that
// malformed worklist entries still resolve to a domain and produce a row.
//
// The domain is the authority after "://" (or from the start when there is no scheme)
// up to the first '/', '?' or '#', lowercased, with userinfo and port removed. The path
// is everything from the first '/' after the authority, or "/" when there is none;
// a query directly after the authority is kept behind a leading "/".
func SplitURL(rawURL string) (domain, path string) {
	rest := strings.TrimSpace(rawURL)
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}

	end := strings.IndexAny(rest, "/?#")
	authority := rest
	path = "/"
	if end >= 0 {
		authority = rest[:end]
		switch rest[end] {
		case '/':
			path = rest[end:]
		case '?':
			path = "/" + rest[end:]
		}
	}
	if hash := strings.IndexByte(path, '#'); hash >= 0 {
		path = path[:hash]
		if path == "" {
			path = "/"
		}
	}

	return normalizeHost(authority), path
}

// ExtractDomain returns the domain part of rawURL as SplitURL computes it.
func ExtractDomain(rawURL string) string {
	domain, _ := SplitURL(rawURL)
	return domain
}

// ExtractPath returns the path part of rawURL as SplitURL computes it.
func ExtractPath(rawURL string) string {
	_, path := SplitURL(rawURL)
	return path
}

// normalizeHost strips userinfo and port from an authority and lowercases it.
// Bracketed IPv6 literals keep their brackets.
func normalizeHost(authority string) string {
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		authority = authority[at+1:]
	}
	if strings.HasPrefix(authority, "[") {
		if closing := strings.IndexByte(authority, ']'); closing >= 0 {
			authority = authority[:closing+1]
		}
	} else if colon := strings.IndexByte(authority, ':'); colon >= 0 {
		authority = authority[:colon]
	}
	return strings.ToLower(authority)
}
