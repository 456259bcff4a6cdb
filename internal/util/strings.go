// Package util provides small helpers shared across the library that do not
// belong to a domain-specific package.
package util

import "strings"

// SafeTruncate truncates a string to maxLen characters without panicking.
// Used when logging token prefixes so only a fragment of a credential ever
// reaches a log line.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL normalizes a URL for comparison by removing trailing slashes.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
