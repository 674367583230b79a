package schedule

import (
	"fmt"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// FormatInterval renders a period in the largest whole-ish unit.
func FormatInterval(seconds int64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		return trimUnit(float64(seconds)/60, "minutes")
	case seconds < 86400:
		return trimUnit(float64(seconds)/3600, "hours")
	default:
		return trimUnit(float64(seconds)/86400, "days")
	}
}

func trimUnit(v float64, unit string) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d %s", int64(v), unit)
	}
	return fmt.Sprintf("%.1f %s", v, unit)
}

// FormatTimestamp renders unix seconds in loc. Zero renders as "never".
func FormatTimestamp(ts int64, loc *time.Location) string {
	if ts == 0 {
		return "never"
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(ts, 0).In(loc).Format(timestampLayout)
}
