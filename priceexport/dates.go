package priceexport

import "time"

// formLayout is the date format the Elexys form fields expect.
const formLayout = "02/01/2006"

// DateRange gives the from/until form values for a (year, month) export.
// From is the last day of the previous month rather than the first of the
// target month: the grid treats the range as exclusive at midnight, and
// starting a day early keeps the 00:00 row of day one in the export.
// Until is the first day of the next month.
func DateRange(year int, month time.Month) (from, until string) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 0, -1).Format(formLayout),
		first.AddDate(0, 1, 0).Format(formLayout)
}
