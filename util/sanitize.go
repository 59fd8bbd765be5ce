package util

import (
	"path"
	"strings"
	"unicode"
)

// SanitizeString trims whitespace and removes control characters from s.
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeFileName reduces a client-supplied file name to a single safe
// path segment. Empty results become fallback.
func SanitizeFileName(name, fallback string) string {
	name = SanitizeString(strings.ReplaceAll(name, `\`, "/"))
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		name = ""
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '?', '#', '%', '*', ':', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" {
		return fallback
	}
	return name
}
