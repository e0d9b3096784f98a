package validation

import (
	"strings"
	"unicode"
)

const maxFilterParamLen = 100

// SanitizeFilterParam strips control characters from a user-supplied filter
// value and caps its length. Queries are parameterized, so this guards log
// output and cache keys rather than SQL.
func SanitizeFilterParam(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if len(cleaned) > maxFilterParamLen {
		cleaned = cleaned[:maxFilterParamLen]
	}
	return cleaned
}
