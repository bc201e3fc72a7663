package timeline

import "github.com/hyorim/carenotes/internal/models"

// ImprovedMarker is the detail text that is shown as an "improved" badge
// instead of going through the highlighter.
const ImprovedMarker = "호전됨"

// Highlight splits text into plain and matching runs for query. Matching is
// case-insensitive and every occurrence is marked, scanning left to right.
// Joining the segment texts reproduces text exactly.
func Highlight(text, query string) []models.Segment {
	q := NormalizeQuery(query)
	if q == "" || text == "" {
		return []models.Segment{{Text: text}}
	}
	var segs []models.Segment
	rest := text
	for rest != "" {
		start, end := indexFold(rest, q)
		if start < 0 {
			segs = append(segs, models.Segment{Text: rest})
			break
		}
		if start > 0 {
			segs = append(segs, models.Segment{Text: rest[:start]})
		}
		segs = append(segs, models.Segment{Text: rest[start:end], Match: true})
		rest = rest[end:]
	}
	return segs
}

// IsImproved reports whether a sanitized detail is the improvement marker.
func IsImproved(detail string) bool {
	return detail == ImprovedMarker
}
