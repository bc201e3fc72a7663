// Package parser turns raw nursing-record text into dated note entries.
//
// Records are plain text: a "# YYYY-MM-DD" header opens a day and every
// bullet line ("*" or "-") below it is scanned for vocabulary keywords.
package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"slices"
	"strings"

	"github.com/hyorim/carenotes/internal/models"
	"github.com/hyorim/carenotes/internal/timeline"
)

// DefaultKeywords is the vocabulary recognised when none is configured.
var DefaultKeywords = []string{"땀", "자가배뇨", "수면", "가래", "욕창"}

var dateHeaderRe = regexp.MustCompile(`^# (\d{4}-\d{2}-\d{2})`)

// Options controls parsing.
type Options struct {
	// Keywords is the vocabulary; DefaultKeywords when empty.
	Keywords []string
	// DeriveImprovements appends an improvement item for every keyword seen
	// on the previous day but not on the current one.
	DeriveImprovements bool
}

// ParseByDate scans text and returns the keyword items found under each date
// header. A repeated header starts that date over.
func ParseByDate(text []byte, keywords []string) map[string][]models.NoteItem {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	records := make(map[string][]models.NoteItem)
	current := ""

	sc := bufio.NewScanner(bytes.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := dateHeaderRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			records[current] = []models.NoteItem{}
			continue
		}
		if current == "" || !(strings.HasPrefix(line, "*") || strings.HasPrefix(line, "-")) {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(line, kw) {
				records[current] = append(records[current], models.NoteItem{Keyword: kw, Detail: line})
			}
		}
	}
	return records
}

// DeriveImprovements returns a copy of records where each date also lists the
// previous date's keywords that no longer appear, with the improvement marker
// as detail. The previous day's first-seen order is kept.
func DeriveImprovements(records map[string][]models.NoteItem) map[string][]models.NoteItem {
	dates := sortedDates(records)
	out := make(map[string][]models.NoteItem, len(records))
	for i, date := range dates {
		items := slices.Clone(records[date])
		if items == nil {
			items = []models.NoteItem{}
		}
		if i > 0 {
			current := keywordSet(records[date])
			seen := make(map[string]struct{})
			for _, it := range records[dates[i-1]] {
				if _, ok := current[it.Keyword]; ok {
					continue
				}
				if _, ok := seen[it.Keyword]; ok {
					continue
				}
				seen[it.Keyword] = struct{}{}
				items = append(items, models.NoteItem{Keyword: it.Keyword, Detail: timeline.ImprovedMarker})
			}
		}
		out[date] = items
	}
	return out
}

// BuildNotes parses text into day entries ordered by date.
func BuildNotes(text []byte, opts Options) []models.DayEntry {
	records := ParseByDate(text, opts.Keywords)
	if opts.DeriveImprovements {
		records = DeriveImprovements(records)
	}
	notes := make([]models.DayEntry, 0, len(records))
	for _, date := range sortedDates(records) {
		notes = append(notes, models.DayEntry{Date: date, Items: records[date]})
	}
	return notes
}

func sortedDates(records map[string][]models.NoteItem) []string {
	dates := make([]string, 0, len(records))
	for d := range records {
		dates = append(dates, d)
	}
	slices.Sort(dates)
	return dates
}

func keywordSet(items []models.NoteItem) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it.Keyword] = struct{}{}
	}
	return set
}
