package ops

import (
	"context"
	"time"

	"github.com/yanun0323/logs"
)

// NextUTCMidnight returns the first UTC midnight strictly after now.
func NextUTCMidnight(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// RunDailyReset invokes reset at every UTC midnight until the context
// ends. The risk gate itself never resets its counters; the schedule
// lives out here so the day boundary stays an operator decision.
func RunDailyReset(ctx context.Context, reset func()) {
	for {
		wait := time.Until(NextUTCMidnight(time.Now()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			logs.Info("daily risk counter reset")
			reset()
		}
	}
}
