package runreq

import (
	"testing"
	"time"
)

func TestParseISODuration(t *testing.T) {
	day := 24 * time.Hour
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"PT24H", 24 * time.Hour},
		{"PT30M", 30 * time.Minute},
		{"PT90S", 90 * time.Second},
		{"P1D", day},
		{"P2W", 14 * day},
		{"P1DT12H", 36 * time.Hour},
		{"P1M", time.Duration(30.44 * float64(day))},
		{"P1Y", time.Duration(365.25 * float64(day))},
		{"P1Y2M3DT4H5M6S", time.Duration(365.25*float64(day)) +
			time.Duration(2*30.44*float64(day)) + 3*day +
			4*time.Hour + 5*time.Minute + 6*time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseISODuration(tc.in)
			if !ok {
				t.Fatalf("%q did not parse", tc.in)
			}
			// float math, allow a second of slop on the calendar approximations
			diff := got - tc.want
			if diff < 0 {
				diff = -diff
			}
			if diff > time.Second {
				t.Fatalf("%q = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseISODurationRejects(t *testing.T) {
	for _, in := range []string{"", "P", "PT", "24h", "PT24", "P24X", "one day", "-PT1H"} {
		if _, ok := ParseISODuration(in); ok {
			t.Fatalf("%q should not parse", in)
		}
	}
}
