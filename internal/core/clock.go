package core

import "time"

// Clock returns the current time. Components take one so tests can move time.
type Clock func() time.Time

// SystemClock is the wall clock in UTC, truncated to whole seconds so stored
// timestamps compare identically on every backend.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
