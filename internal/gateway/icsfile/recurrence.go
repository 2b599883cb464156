package icsfile

import (
	"time"

	"github.com/teambition/rrule-go"
)

// isRecurring reports whether raw is a usable RRULE for a series starting
// at start. Series are never expanded: a match on a recurring entry is
// compared and rewritten as one item, so only the flag matters here. A
// malformed rule or one that yields no occurrence is treated as a single
// event.
func isRecurring(raw string, start time.Time) bool {
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return false
	}
	if start.IsZero() {
		return true
	}
	r.DTStart(start)
	return !r.After(start, true).IsZero()
}
