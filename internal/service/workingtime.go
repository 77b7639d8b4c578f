package service

import (
	"time"

	"github.com/mtlprog/convodist/internal/domain"
)

// InWorkingTime reports whether now falls inside any of the team's
// attendance windows for the current weekday. The wall clock is shifted
// to the team's reference offset before testing; windows compare as
// [start, end) in milliseconds of day. A team with no windows for the
// day is outside working time.
func InWorkingTime(team *domain.Team, now time.Time) bool {
	shifted := now.UTC().Add(time.Duration(team.UTCOffsetMinutes) * time.Minute)

	windows := team.WindowsFor(shifted.Weekday())
	if len(windows) == 0 {
		return false
	}

	msOfDay := int64(shifted.Hour())*3600_000 +
		int64(shifted.Minute())*60_000 +
		int64(shifted.Second())*1000 +
		int64(shifted.Nanosecond()/1_000_000)

	for _, w := range windows {
		if w.Contains(msOfDay) {
			return true
		}
	}
	return false
}
