package analytics

import "time"

// testNow is the fixed reference instant shared by the analyzer tests.
var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := testNow.AddDate(0, 0, -n)
	return &t
}

func tp(t time.Time) *time.Time {
	return &t
}
