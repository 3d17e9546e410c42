package runreq

import (
	"regexp"
	"strconv"
	"time"
)

// calendar-approximate component lengths
const (
	hoursPerDay   = 24.0
	daysPerYear   = 365.25
	daysPerMonth  = 30.44
	secondsPerDay = hoursPerDay * 3600
)

var isoDurationRe = regexp.MustCompile(
	`^P(?:(\d+(?:\.\d+)?)Y)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)W)?(?:(\d+(?:\.\d+)?)D)?` +
		`(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`,
)

// ParseISODuration parses an ISO-8601 duration like "PT24H" or "P1Y2M3DT4H".
// Years and months use calendar-approximate lengths (365.25 and 30.44 days).
// Returns ok=false for anything it cannot parse, including a bare "P"
func ParseISODuration(s string) (time.Duration, bool) {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	any := false
	var seconds float64
	add := func(raw string, mult float64) bool {
		if raw == "" {
			return true
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		seconds += v * mult
		any = true
		return true
	}

	ok := add(m[1], daysPerYear*secondsPerDay) &&
		add(m[2], daysPerMonth*secondsPerDay) &&
		add(m[3], 7*secondsPerDay) &&
		add(m[4], secondsPerDay) &&
		add(m[5], 3600) &&
		add(m[6], 60) &&
		add(m[7], 1)
	if !ok || !any {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
