package scheduler

import "time"

// NextBoundary returns the first instant after now that lies on the
// intervalMinutes grid of the hour, at second zero, in now's location.
//
// The minute is rounded down to the grid and one interval added; time.Date
// normalises minute 60 into the next hour (and day). The result is always
// strictly after now and at most intervalMinutes away.
func NextBoundary(now time.Time, intervalMinutes int) time.Time {
	minute := now.Minute()
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(),
		minute-minute%intervalMinutes+intervalMinutes, 0, 0, now.Location())
}
