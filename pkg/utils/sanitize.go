package utils

import (
	"strings"
	"unicode"
)

const maxFilenameLength = 100

// SanitizeFilename makes name safe as a single path component on Windows and Unix.
// Runs of reserved or control characters collapse to one underscore; an empty result
// becomes "untitled".
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if strings.ContainsRune(`<>:"/\|?*`, r) || unicode.IsControl(r) || r == '_' {
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}

	sanitized := strings.Trim(b.String(), "_ ")
	if len(sanitized) > maxFilenameLength {
		sanitized = strings.Trim(truncateUTF8(sanitized, maxFilenameLength), "_ ")
	}
	if sanitized == "" {
		return "untitled"
	}
	return sanitized
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	for n > 0 && n < len(s) && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
