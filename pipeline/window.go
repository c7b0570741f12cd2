package pipeline

import "time"

// Window bounds the months whose data is complete upstream.
type Window struct {
	LatestYear  int
	LatestMonth time.Month
}

// ComputeWindow gives the most recent month that can be fetched in full.
// A month's data is published early in the following month, so until the
// 5th the cutoff sits one month further back.
func ComputeWindow(today time.Time) Window {
	back := 1
	if today.Day() <= 4 {
		back = 2
	}
	t := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -back, 0)
	return Window{LatestYear: t.Year(), LatestMonth: t.Month()}
}

// Contains reports whether (year, month) falls at or before the window's
// latest fetchable month.
func (w Window) Contains(year int, month time.Month) bool {
	if year != w.LatestYear {
		return year < w.LatestYear
	}
	return month <= w.LatestMonth
}
