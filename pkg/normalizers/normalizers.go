// Package normalizers turns raw supplier and catalog values into comparable forms.
package normalizers

import (
	"strings"
	"unicode"
)

// RemoveWhitespace drops every whitespace rune, including inner spaces.
func RemoveWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
