package risk

import (
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"
)

// Hours is a UTC time-of-day trading window with minute granularity.
// Start > End means the window wraps midnight (e.g. 22:00-02:00).
// Both boundaries count as inside the window.
type Hours struct {
	Start   int // minutes after midnight UTC
	End     int
	Enabled bool
}

// ParseHours builds a window from "HH:MM" strings. Two empty strings
// yield a disabled window.
func ParseHours(start, end string) (Hours, error) {
	if start == "" && end == "" {
		return Hours{}, nil
	}
	s, err := parseMinutes(start)
	if err != nil {
		return Hours{}, errors.Wrap(err, "parse trading hours start")
	}
	e, err := parseMinutes(end)
	if err != nil {
		return Hours{}, errors.Wrap(err, "parse trading hours end")
	}
	return Hours{Start: s, End: e, Enabled: true}, nil
}

// Contains reports whether the instant falls inside the window.
func (h Hours) Contains(now time.Time) bool {
	if !h.Enabled {
		return true
	}
	minute := now.UTC().Hour()*60 + now.UTC().Minute()
	if h.Start <= h.End {
		return minute >= h.Start && minute <= h.End
	}
	// wrap-around window spans midnight
	return minute >= h.Start || minute <= h.End
}

func parseMinutes(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, errors.Errorf("invalid time of day %q, want HH:MM", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid minute in %q", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, errors.Errorf("time of day %q out of range", s)
	}
	return hh*60 + mm, nil
}
