package reconnect

import "time"

// Schedule defines the backoff durations for successive attempts to reach
// the inference server.
var Schedule = []time.Duration{
	time.Second, time.Second,
	2 * time.Second, 2 * time.Second,
	5 * time.Second, 5 * time.Second,
	10 * time.Second,
}

// Delay returns the backoff duration for the given attempt. Attempts beyond
// the schedule default to 15 seconds.
func Delay(attempt int) time.Duration {
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 15 * time.Second
}
