package timeline

import "time"

var weekdays = [...]string{"일", "월", "화", "수", "목", "금", "토"}

// DateLabel renders an ISO date with its Korean weekday, e.g.
// "2025-07-25 (금)". Unparsable input is returned unchanged.
func DateLabel(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return t.Format(time.DateOnly) + " (" + weekdays[t.Weekday()] + ")"
}
