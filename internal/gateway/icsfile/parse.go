package icsfile

import (
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calsync/internal/model"
)

// floatingLayout is a local date-time with no zone, which is how entries
// are written: the sync never converts zones.
const floatingLayout = "20060102T150405"

// entryFromVEvent converts a VEVENT into the engine's view. An unreadable
// DTSTART leaves Start zero so the entry is always treated as changed.
func entryFromVEvent(ve *ical.VEvent) (model.CalendarEntry, error) {
	var out model.CalendarEntry

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.Handle = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Subject = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Body = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		out.Categories = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if t, err := parseICSTime(p.Value, tzidParam(p)); err == nil {
			out.Start = t
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil && !out.Start.IsZero() {
		if end, err := parseICSTime(p.Value, tzidParam(p)); err == nil && end.After(out.Start) {
			out.DurationMinutes = int(end.Sub(out.Start) / time.Minute)
		}
	}
	if out.DurationMinutes == 0 {
		if p := ve.GetProperty(ical.ComponentPropertyDuration); p != nil {
			out.DurationMinutes = parseDurationMinutes(p.Value)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.Recurring = isRecurring(p.Value, out.Start)
	}

	return out, nil
}

func tzidParam(p *ical.IANAProperty) string {
	if p.ICalParameters == nil {
		return ""
	}
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

// parseICSTime parses a DATE or DATE-TIME value. UTC values (trailing Z)
// and TZID values are converted to local wall time; floating values are
// read as local.
func parseICSTime(v, tzid string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(time.Local), nil
	}

	loc := time.Local
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}

	if strings.Contains(v, "T") {
		t, err := time.ParseInLocation(floatingLayout, v, loc)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(time.Local), nil
	}

	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, time.Local)
}

// parseDurationMinutes handles the common PT#H#M / P#D forms.
func parseDurationMinutes(v string) int {
	v = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(v)), "+")
	if !strings.HasPrefix(v, "P") {
		return 0
	}
	total, num := 0, ""
	for _, r := range v[1:] {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'T':
		default:
			n, _ := strconv.Atoi(num)
			num = ""
			switch r {
			case 'W':
				total += n * 7 * 24 * 60
			case 'D':
				total += n * 24 * 60
			case 'H':
				total += n * 60
			case 'M':
				total += n
			}
		}
	}
	return total
}
