package prayer

import (
	"math"
	"time"

	"ummah-sync/internal/parse"
)

const minutesPerDay = 24 * 60

// NextEvent is the upcoming prayer relative to some instant.
type NextEvent struct {
	Prayer    Name   `json:"prayer"`
	Time      string `json:"time"`
	Remaining int    `json:"remainingMinutes"`
	Tomorrow  bool   `json:"tomorrow,omitempty"`
}

// Next returns the first prayer of s strictly after now's wall-clock time,
// with the whole minutes remaining until it. When every prayer of the day
// has passed it returns Fajr, counting through midnight. Seconds are part
// of now, so remaining is the floor of the exact difference on both sides
// of midnight.
func Next(s Schedule, now time.Time) NextEvent {
	h, m, sec := now.Clock()
	nowMinutes := float64(h*60+m) + (float64(sec)+float64(now.Nanosecond())/1e9)/60

	for _, n := range Order {
		at, err := parse.Clock(s.Time(n))
		if err != nil {
			continue
		}
		if float64(at) > nowMinutes {
			return NextEvent{
				Prayer:    n,
				Time:      s.Time(n),
				Remaining: int(math.Floor(float64(at) - nowMinutes)),
			}
		}
	}

	fajr, _ := parse.Clock(s.Fajr)
	return NextEvent{
		Prayer:    Fajr,
		Time:      s.Fajr,
		Remaining: int(math.Floor(minutesPerDay - nowMinutes + float64(fajr))),
		Tomorrow:  true,
	}
}
