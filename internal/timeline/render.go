package timeline

import "github.com/hyorim/carenotes/internal/models"

// Colorer maps a keyword to its display color.
type Colorer interface {
	ColorOf(keyword string) string
}

// RenderedItem is a note item prepared for display.
type RenderedItem struct {
	Keyword  string           `json:"keyword"`
	Color    string           `json:"color"`
	Detail   string           `json:"detail"`
	Segments []models.Segment `json:"segments,omitempty"`
	Improved bool             `json:"improved,omitempty"`
}

// ItemGroup collects the rendered items of one keyword within a day.
type ItemGroup struct {
	Keyword string         `json:"keyword"`
	Color   string         `json:"color"`
	Items   []RenderedItem `json:"items"`
}

// Render sanitizes and highlights items against query. Items whose detail is
// the improvement marker get Improved set and no segments.
func Render(items []models.NoteItem, query string, colors Colorer) []RenderedItem {
	out := make([]RenderedItem, 0, len(items))
	for _, it := range items {
		kw := it.Category()
		r := RenderedItem{
			Keyword: kw,
			Color:   colors.ColorOf(kw),
			Detail:  Sanitize(it.Detail),
		}
		if IsImproved(r.Detail) {
			r.Improved = true
		} else {
			r.Segments = Highlight(r.Detail, query)
		}
		out = append(out, r)
	}
	return out
}

// Group buckets rendered items by keyword in first-seen order.
func Group(items []RenderedItem) []ItemGroup {
	pos := make(map[string]int)
	groups := []ItemGroup{}
	for _, it := range items {
		i, ok := pos[it.Keyword]
		if !ok {
			i = len(groups)
			pos[it.Keyword] = i
			groups = append(groups, ItemGroup{Keyword: it.Keyword, Color: it.Color})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}
