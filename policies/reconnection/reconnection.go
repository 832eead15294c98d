// Package reconnection provides the delay schedules a connection pool or
// control connection consults between reconnection attempts.
package reconnection

import "time"

// Schedule is a lazy, infinite sequence of delays; NextDelay is called
// once per attempt and is not expected to be reset mid-sequence — callers
// get a fresh Schedule via Policy.NewSchedule after a successful
// reconnection.
type Schedule interface {
	NextDelay() time.Duration
}

// Policy constructs a new Schedule for one reconnection episode (e.g. one
// host going down, or the control connection losing its host).
type Policy interface {
	NewSchedule() Schedule
}
