package timeline

import (
	"strings"
	"unicode/utf8"

	"github.com/hyorim/carenotes/internal/models"
)

// NormalizeQuery trims surrounding whitespace from a search query.
func NormalizeQuery(query string) string {
	return strings.TrimSpace(query)
}

// Matches reports whether item's category keyword or sanitized detail contains
// query, ignoring case. An empty query matches every item.
func Matches(item models.NoteItem, query string) bool {
	q := NormalizeQuery(query)
	if q == "" {
		return true
	}
	return containsFold(item.Category(), q) || containsFold(Sanitize(item.Detail), q)
}

// Apply keeps, per entry, only the items matching query and drops entries
// left without items. Entry order is preserved. An empty query returns
// entries itself.
func Apply(entries []models.DayEntry, query string) []models.DayEntry {
	q := NormalizeQuery(query)
	if q == "" {
		return entries
	}
	out := make([]models.DayEntry, 0, len(entries))
	for _, e := range entries {
		var items []models.NoteItem
		for _, it := range e.Items {
			if Matches(it, q) {
				items = append(items, it)
			}
		}
		if len(items) == 0 {
			continue
		}
		out = append(out, models.DayEntry{Date: e.Date, Items: items})
	}
	return out
}

func containsFold(s, sub string) bool {
	start, _ := indexFold(s, sub)
	return start >= 0
}

// indexFold returns the byte range of the first case-insensitive occurrence
// of sub in s, or -1, -1. The range always refers to s, so slicing s with it
// keeps the original spelling.
func indexFold(s, sub string) (start, end int) {
	if sub == "" {
		return 0, 0
	}
	n := utf8.RuneCountInString(sub)
	for i := range s {
		j := i
		for k := 0; k < n && j < len(s); k++ {
			_, size := utf8.DecodeRuneInString(s[j:])
			j += size
		}
		if equalFold(s[i:j], sub) {
			return i, j
		}
	}
	return -1, -1
}

// equalFold is strings.EqualFold except that bytes of invalid UTF-8 only
// match themselves instead of every other invalid byte.
func equalFold(a, b string) bool {
	for a != "" && b != "" {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if (ra == utf8.RuneError && na == 1) || (rb == utf8.RuneError && nb == 1) {
			if na != nb || a[0] != b[0] {
				return false
			}
		} else if !strings.EqualFold(a[:na], b[:nb]) {
			return false
		}
		a, b = a[na:], b[nb:]
	}
	return a == "" && b == ""
}
