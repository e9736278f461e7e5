// Package prayer computes the five daily prayer times for a coordinate and
// selects the next upcoming one.
package prayer

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"ummah-sync/internal/model"
)

// Name identifies one of the five daily prayers.
type Name string

const (
	Fajr    Name = "Fajr"
	Dhuhr   Name = "Dhuhr"
	Asr     Name = "Asr"
	Maghrib Name = "Maghrib"
	Isha    Name = "Isha"
)

// Order is the fixed chronological order of the daily prayers.
var Order = [5]Name{Fajr, Dhuhr, Asr, Maghrib, Isha}

// DefaultCoordinate is used when no coordinate is known (Cairo).
var DefaultCoordinate = model.Coordinate{Lat: 30.0444, Lng: 31.2357}

// Schedule holds the wall-clock times ("HH:MM", 24-hour) of one calendar day.
type Schedule struct {
	Date     string `json:"date"`
	Fajr     string `json:"fajr"`
	Dhuhr    string `json:"dhuhr"`
	Asr      string `json:"asr"`
	Maghrib  string `json:"maghrib"`
	Isha     string `json:"isha"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Time returns the wall-clock time of prayer n.
func (s Schedule) Time(n Name) string {
	switch n {
	case Fajr:
		return s.Fajr
	case Dhuhr:
		return s.Dhuhr
	case Asr:
		return s.Asr
	case Maghrib:
		return s.Maghrib
	case Isha:
		return s.Isha
	}
	return ""
}

// fallbackSchedule is returned whenever the calculation cannot produce a
// usable result.
var fallbackSchedule = Schedule{
	Fajr:     "04:45",
	Dhuhr:    "12:00",
	Asr:      "15:15",
	Maghrib:  "17:45",
	Isha:     "19:15",
	Fallback: true,
}

// convention is a calculation method: twilight angles for Fajr and Isha and
// the shadow factor for Asr.
type convention struct {
	fajrAngle    float64
	ishaAngle    float64
	maghribAngle float64
	asrFactor    float64
}

// egyptian is the Egyptian General Authority of Survey method with the
// Shafi'i (standard) Asr shadow length.
var egyptian = convention{
	fajrAngle:    19.5,
	ishaAngle:    17.5,
	maghribAngle: 0.833,
	asrFactor:    1,
}

// ForLocation is Calculate at c, or at DefaultCoordinate when c is nil.
func ForLocation(date time.Time, c *model.Coordinate) Schedule {
	if c == nil {
		return Calculate(date, DefaultCoordinate.Lat, DefaultCoordinate.Lng)
	}
	return Calculate(date, c.Lat, c.Lng)
}

// Calculate returns the prayer times of date's calendar day at (lat, lng),
// expressed in date's location. It never fails: invalid input or an
// undefined twilight yields the fallback schedule.
func Calculate(date time.Time, lat, lng float64) Schedule {
	if date.IsZero() || !validCoordinate(lat, lng) {
		log.Warn().Time("date", date).Float64("lat", lat).Float64("lng", lng).
			Msg("invalid prayer calculation input; using fallback schedule")
		return fallbackFor(date)
	}

	y, m, d := date.Date()
	hours := egyptian.utcHours(julian(y, int(m), d)-lng/(15*24), lat, lng)
	for _, h := range hours {
		if math.IsNaN(h) || math.IsInf(h, 0) {
			log.Warn().Time("date", date).Float64("lat", lat).Float64("lng", lng).
				Msg("prayer time undefined at this coordinate; using fallback schedule")
			return fallbackFor(date)
		}
	}

	base := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	loc := date.Location()
	clock := func(h float64) string {
		t := base.Add(time.Duration(h * float64(time.Hour)))
		return t.Add(30 * time.Second).Truncate(time.Minute).In(loc).Format("15:04")
	}

	return Schedule{
		Date:    date.Format("2006-01-02"),
		Fajr:    clock(hours[0]),
		Dhuhr:   clock(hours[1]),
		Asr:     clock(hours[2]),
		Maghrib: clock(hours[3]),
		Isha:    clock(hours[4]),
	}
}

func fallbackFor(date time.Time) Schedule {
	s := fallbackSchedule
	if !date.IsZero() {
		s.Date = date.Format("2006-01-02")
	}
	return s
}

func validCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// utcHours returns the five prayer times as hours after UTC midnight.
// jd is the Julian date of the day, shifted to the observer's longitude.
func (c convention) utcHours(jd, lat, lng float64) [5]float64 {
	h := [5]float64{
		sunAngleTime(jd, lat, c.fajrAngle, 5.0/24, true),
		midDay(jd, 12.0/24),
		asrTime(jd, lat, c.asrFactor, 13.0/24),
		sunAngleTime(jd, lat, c.maghribAngle, 18.0/24, false),
		sunAngleTime(jd, lat, c.ishaAngle, 18.0/24, false),
	}
	for i := range h {
		h[i] -= lng / 15
	}
	return h
}

// julian returns the Julian date at 0h UT of the given Gregorian date.
func julian(year, month, day int) float64 {
	if month <= 2 {
		year--
		month += 12
	}
	a := math.Floor(float64(year) / 100)
	b := 2 - a + math.Floor(a/4)
	return math.Floor(365.25*float64(year+4716)) + math.Floor(30.6001*float64(month+1)) + float64(day) + b - 1524.5
}

// sunPosition returns the sun's declination (degrees) and the equation of
// time (hours) at Julian date jd.
func sunPosition(jd float64) (decl, eqt float64) {
	d := jd - 2451545.0
	g := fixAngle(357.529 + 0.98560028*d)
	q := fixAngle(280.459 + 0.98564736*d)
	l := fixAngle(q + 1.915*dsin(g) + 0.020*dsin(2*g))
	e := 23.439 - 0.00000036*d

	ra := datan2(dcos(e)*dsin(l), dcos(l)) / 15
	eqt = q/15 - fixHour(ra)
	decl = dasin(dsin(e) * dsin(l))
	return decl, eqt
}

// midDay returns solar noon in local mean hours for day portion t.
func midDay(jd, t float64) float64 {
	_, eqt := sunPosition(jd + t)
	return fixHour(12 - eqt)
}

// sunAngleTime returns the time at which the sun is angle degrees below the
// horizon, before noon when ccw is set and after it otherwise.
func sunAngleTime(jd, lat, angle, t float64, ccw bool) float64 {
	decl, _ := sunPosition(jd + t)
	noon := midDay(jd, t)
	x := (-dsin(angle) - dsin(decl)*dsin(lat)) / (dcos(decl) * dcos(lat))
	span := dacos(x) / 15
	if ccw {
		return noon - span
	}
	return noon + span
}

// asrTime returns the time at which an object's shadow is factor times its
// length plus its noon shadow.
func asrTime(jd, lat, factor, t float64) float64 {
	decl, _ := sunPosition(jd + t)
	angle := -dacot(factor + dtan(math.Abs(lat-decl)))
	return sunAngleTime(jd, lat, angle, t, false)
}

func dtr(d float64) float64 { return d * math.Pi / 180 }
func rtd(r float64) float64 { return r * 180 / math.Pi }

func dsin(d float64) float64 { return math.Sin(dtr(d)) }
func dcos(d float64) float64 { return math.Cos(dtr(d)) }
func dtan(d float64) float64 { return math.Tan(dtr(d)) }
func dasin(x float64) float64 { return rtd(math.Asin(x)) }
func dacos(x float64) float64 { return rtd(math.Acos(x)) }
func datan2(y, x float64) float64 { return rtd(math.Atan2(y, x)) }
func dacot(x float64) float64 { return rtd(math.Atan(1 / x)) }
func fixAngle(a float64) float64 { return fix(a, 360) }
func fixHour(h float64) float64 { return fix(h, 24) }

func fix(a, b float64) float64 {
	return a - b*math.Floor(a/b)
}
