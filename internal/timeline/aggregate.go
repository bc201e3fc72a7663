package timeline

import (
	"cmp"
	"slices"

	"github.com/hyorim/carenotes/internal/models"
)

// Aggregate counts items per category keyword across entries. The result is
// ordered by count descending; ties keep the order in which keywords were
// first seen.
func Aggregate(entries []models.DayEntry) []models.KeywordStat {
	pos := make(map[string]int)
	stats := []models.KeywordStat{}
	for _, e := range entries {
		for _, it := range e.Items {
			k := it.Category()
			if i, ok := pos[k]; ok {
				stats[i].Count++
				continue
			}
			pos[k] = len(stats)
			stats = append(stats, models.KeywordStat{Keyword: k, Count: 1})
		}
	}
	slices.SortStableFunc(stats, func(a, b models.KeywordStat) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return stats
}
