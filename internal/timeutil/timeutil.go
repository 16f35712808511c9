// Package timeutil normalizes times between the shop's fixed civil timezone
// and absolute UTC instants, and formats instants for the voice agent.
// All functions are pure.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// ZoneName is the shop's civil timezone. The whole system reconciles a single
// location's calendar, so this never varies per request.
const ZoneName = "America/New_York"

const (
	offsetDaylight = "-04:00"
	offsetStandard = "-05:00"
)

var location = mustLoadLocation()

func mustLoadLocation() *time.Location {
	loc, err := time.LoadLocation(ZoneName)
	if err != nil {
		panic(fmt.Sprintf("timeutil: load %s: %v", ZoneName, err))
	}
	return loc
}

// Location returns the shop's fixed timezone.
func Location() *time.Location {
	return location
}

// SeasonalOffset picks the UTC offset to attach to offset-less inputs.
// The rule is by calendar month (March through October is daylight time),
// not by actual DST transition dates. That misclassifies the edges of DST in
// some years; kept deliberately to match the upstream agent's conventions.
func SeasonalOffset(now time.Time) string {
	month := now.In(location).Month()
	if month >= time.March && month <= time.October {
		return offsetDaylight
	}
	return offsetStandard
}

// HasKnownOffset reports whether raw carries an offset this system
// recognizes: one of the two fixed local offsets or a trailing UTC marker.
func HasKnownOffset(raw string) bool {
	return strings.Contains(raw, offsetDaylight) ||
		strings.Contains(raw, offsetStandard) ||
		strings.Contains(raw, "Z")
}

// NormalizeStartTime resolves an agent-supplied time string into a canonical
// local-zone RFC3339 representation:
//
//   - no recognizable offset: assume the fixed civil timezone and attach the
//     seasonal offset for now
//   - trailing UTC marker: convert to the local-zone representation so
//     downstream logging shows wall-clock times consistently
//   - local offset already present: returned unchanged
func NormalizeStartTime(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty start time")
	}

	if !HasKnownOffset(raw) {
		naive, err := parseNaive(raw)
		if err != nil {
			return "", fmt.Errorf("parse start time %q: %w", raw, err)
		}
		return naive.Format("2006-01-02T15:04:05") + SeasonalOffset(now), nil
	}

	if strings.HasSuffix(raw, "Z") {
		utc, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", fmt.Errorf("parse UTC start time %q: %w", raw, err)
		}
		return utc.In(location).Format("2006-01-02T15:04:05-07:00"), nil
	}

	return raw, nil
}

// ParseInstant converts an RFC3339 string into an absolute instant.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse instant %q: %w", s, err)
	}
	return t, nil
}

func parseNaive(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized layout")
}

// CivilDayBounds returns the [midnight, 23:59:59] window of a YYYY-MM-DD date
// in the shop timezone.
func CivilDayBounds(date string) (start, end time.Time, err error) {
	day, err := time.ParseInLocation("2006-01-02", date, location)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	return day, day.Add(23*time.Hour + 59*time.Minute + 59*time.Second), nil
}

// FormatHuman renders an instant for speech, e.g. "Tue, Sep 1, 2026, 3:04 PM EDT".
func FormatHuman(t time.Time) string {
	return t.In(location).Format("Mon, Jan 2, 2006, 3:04 PM MST")
}

// SlotStrings returns the display representations attached to availability
// slots: spoken time ("3:30 PM"), 24-hour time ("15:30"), and the local-zone
// ISO timestamp.
func SlotStrings(t time.Time) (human, time24, localISO string) {
	local := t.In(location)
	return local.Format("3:04 PM"), local.Format("15:04"), local.Format("2006-01-02T15:04:05-07:00")
}

// DateContext carries fixed-timezone phrases that disambiguate relative dates
// spoken by callers ("tomorrow", "next Thursday").
type DateContext struct {
	Now          string
	Timezone     string
	Tomorrow     string
	NextThursday string
}

// CurrentContext builds the relative-date context for the current instant.
func CurrentContext(now time.Time) DateContext {
	local := now.In(location)

	daysUntilThursday := (int(time.Thursday) - int(local.Weekday()) + 7) % 7
	if daysUntilThursday == 0 {
		daysUntilThursday = 7
	}
	nextThursday := local.AddDate(0, 0, daysUntilThursday)
	tomorrow := local.AddDate(0, 0, 1)

	return DateContext{
		Now:          local.Format("Monday, January 2, 2006, 3:04 PM"),
		Timezone:     fmt.Sprintf("%s (%s)", ZoneName, local.Format("MST")),
		Tomorrow:     tomorrow.Format("Monday, January 2, 2006"),
		NextThursday: nextThursday.Format("January 2, 2006"),
	}
}
