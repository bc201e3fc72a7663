package timeline

import "github.com/hyorim/carenotes/internal/models"

// Reconcile returns selected when it is still one of the filtered dates.
// Otherwise it falls back to the most recent filtered date, or "" when
// filtered is empty. filtered must be in ascending date order.
func Reconcile(selected string, filtered []models.DayEntry) string {
	if selected != "" && Contains(filtered, selected) {
		return selected
	}
	if len(filtered) == 0 {
		return ""
	}
	return filtered[len(filtered)-1].Date
}

// Contains reports whether entries has an entry for date.
func Contains(entries []models.DayEntry, date string) bool {
	_, ok := Find(entries, date)
	return ok
}

// Find returns the entry for date.
func Find(entries []models.DayEntry, date string) (models.DayEntry, bool) {
	for _, e := range entries {
		if e.Date == date {
			return e, true
		}
	}
	return models.DayEntry{}, false
}
