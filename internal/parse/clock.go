package parse

import (
	"fmt"
	"regexp"
	"strconv"
)

// clockRe matches a 24-hour wall-clock time at the start of a string.
// Anything after the minutes (a zone suffix such as " (EET)") is ignored.
var clockRe = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})(?:\s.*)?$`)

// Clock returns the number of minutes since midnight for a "HH:MM" string.
func Clock(raw string) (int, error) {
	m := clockRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("unable to parse clock time: %q", raw)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	if h > 23 || mins > 59 {
		return 0, fmt.Errorf("clock time out of range: %q", raw)
	}
	return h*60 + mins, nil
}

// FormatClock renders minutes since midnight as a zero-padded "HH:MM",
// wrapping values outside a single day.
func FormatClock(minutes int) string {
	minutes %= 24 * 60
	if minutes < 0 {
		minutes += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
