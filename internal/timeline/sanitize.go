package timeline

import (
	"strings"
	"unicode"
)

// bulletMarkers are the list markers left behind by record extraction.
var bulletMarkers = []string{"-", "*", "•"}

// Sanitize normalizes note detail text for display: whitespace runs become a
// single space, one leading bullet marker is dropped and the result is trimmed.
func Sanitize(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	for _, m := range bulletMarkers {
		if strings.HasPrefix(s, m) {
			s = strings.TrimLeftFunc(s[len(m):], unicode.IsSpace)
			break
		}
	}
	return strings.TrimSpace(s)
}
