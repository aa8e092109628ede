package search

import (
	"fmt"
	"strings"
	"time"
)

// Period is the half-open interval [Begin, End) a date search value denotes.
// The interval width follows the value's granularity: a year-valued search
// spans the year, a day-valued search the day, and so on.
type Period struct {
	Begin time.Time
	End   time.Time
}

// parsePeriod parses a search date value at any supported granularity.
func parsePeriod(raw string) (Period, error) {
	if strings.Contains(raw, "T") {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			if t, err = time.Parse("2006-01-02T15:04:05", raw); err != nil {
				return Period{}, fmt.Errorf("unparsable date value %q", raw)
			}
		}
		t = t.UTC()
		// time.Parse accepts fractional seconds with any layout; the raw text
		// decides the granularity.
		if strings.ContainsAny(raw, ".,") {
			return Period{Begin: t, End: t.Add(time.Millisecond)}, nil
		}
		return Period{Begin: t, End: t.Add(time.Second)}, nil
	}

	if t, err := time.Parse("2006-01-02", raw); err == nil {
		t = t.UTC()
		return Period{Begin: t, End: t.AddDate(0, 0, 1)}, nil
	}
	if t, err := time.Parse("2006-01", raw); err == nil {
		t = t.UTC()
		return Period{Begin: t, End: t.AddDate(0, 1, 0)}, nil
	}
	if t, err := time.Parse("2006", raw); err == nil {
		t = t.UTC()
		return Period{Begin: t, End: t.AddDate(1, 0, 0)}, nil
	}
	return Period{}, fmt.Errorf("unparsable date value %q", raw)
}
