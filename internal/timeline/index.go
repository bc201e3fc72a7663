// Package timeline implements the nursing-note timeline: payload decoding,
// ordered day views, search filtering, keyword aggregation, selection
// reconciliation and highlight rendering.
package timeline

import (
	"bytes"
	"encoding/json"
	"iter"
	"slices"
	"strings"

	"github.com/hyorim/carenotes/internal/models"
)

// DefaultEnvelopeFields lists the envelope keys that may carry the notes array.
var DefaultEnvelopeFields = []string{"notes"}

// Index holds the unfiltered day entries of one patient, ordered by date.
// It is not safe for concurrent use; the owning controller serializes access.
type Index struct {
	entries        []models.DayEntry
	envelopeFields []string
}

// NewIndex returns an empty index. envelopeFields overrides
// DefaultEnvelopeFields when non-empty.
func NewIndex(envelopeFields ...string) *Index {
	if len(envelopeFields) == 0 {
		envelopeFields = DefaultEnvelopeFields
	}
	return &Index{envelopeFields: envelopeFields}
}

// Load replaces the backing collection with the entries decoded from raw.
// Unrecognized payloads produce an empty index.
func (x *Index) Load(raw []byte) {
	x.entries = DecodePayload(raw, x.envelopeFields...)
}

// LoadEntries replaces the backing collection with a copy of entries,
// merging duplicate dates and sorting by date.
func (x *Index) LoadEntries(entries []models.DayEntry) {
	out := make([]models.DayEntry, 0, len(entries))
	for _, e := range entries {
		if e.Date == "" {
			continue
		}
		out = append(out, models.DayEntry{Date: e.Date, Items: slices.Clone(e.Items)})
	}
	x.entries = mergeAndSort(out)
}

// Reset empties the index.
func (x *Index) Reset() {
	x.entries = nil
}

// IsEmpty reports whether the index holds no entries.
func (x *Index) IsEmpty() bool {
	return len(x.entries) == 0
}

// Len returns the number of day entries.
func (x *Index) Len() int {
	return len(x.entries)
}

// Latest returns the most recent date, or "" when empty.
func (x *Index) Latest() string {
	if len(x.entries) == 0 {
		return ""
	}
	return x.entries[len(x.entries)-1].Date
}

// Ascending yields entries oldest first. The sequence reflects the collection
// at the time of the call and can be ranged over repeatedly.
func (x *Index) Ascending() iter.Seq[models.DayEntry] {
	entries := x.entries
	return func(yield func(models.DayEntry) bool) {
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Descending yields entries latest first.
func (x *Index) Descending() iter.Seq[models.DayEntry] {
	entries := x.entries
	return func(yield func(models.DayEntry) bool) {
		for i := len(entries) - 1; i >= 0; i-- {
			if !yield(entries[i]) {
				return
			}
		}
	}
}

// DecodePayload decodes either a bare JSON array of day entries or an object
// carrying that array under one of envelopeFields. Malformed parts are
// coerced to defaults rather than reported.
func DecodePayload(raw []byte, envelopeFields ...string) []models.DayEntry {
	if len(envelopeFields) == 0 {
		envelopeFields = DefaultEnvelopeFields
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var elems []json.RawMessage
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil
		}
	case '{':
		var env map[string]json.RawMessage
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil
		}
		found := false
		for _, f := range envelopeFields {
			v, ok := env[f]
			if !ok {
				continue
			}
			if err := json.Unmarshal(v, &elems); err == nil {
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	default:
		return nil
	}

	entries := make([]models.DayEntry, 0, len(elems))
	for _, el := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(el, &obj); err != nil || obj == nil {
			continue
		}
		date := strings.TrimSpace(stringField(obj, "date"))
		if date == "" {
			continue
		}
		entries = append(entries, models.DayEntry{Date: date, Items: decodeItems(obj["items"])})
	}
	return mergeAndSort(entries)
}

func decodeItems(raw json.RawMessage) []models.NoteItem {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return []models.NoteItem{}
	}
	items := make([]models.NoteItem, 0, len(elems))
	for _, el := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(el, &obj); err != nil || obj == nil {
			continue
		}
		items = append(items, models.NoteItem{
			Keyword: strings.TrimSpace(stringField(obj, "keyword")),
			Detail:  stringField(obj, "detail"),
		})
	}
	return items
}

// stringField returns obj[key] when it is a JSON string, "" otherwise.
func stringField(obj map[string]json.RawMessage, key string) string {
	v, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// mergeAndSort folds entries sharing a date into the first occurrence and
// orders the result by date.
func mergeAndSort(entries []models.DayEntry) []models.DayEntry {
	pos := make(map[string]int, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if e.Items == nil {
			e.Items = []models.NoteItem{}
		}
		if i, ok := pos[e.Date]; ok {
			out[i].Items = append(out[i].Items, e.Items...)
			continue
		}
		pos[e.Date] = len(out)
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b models.DayEntry) int {
		return strings.Compare(a.Date, b.Date)
	})
	return out
}
