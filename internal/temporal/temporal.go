// Package temporal turns the loosely formatted date and time text found in
// spreadsheets into a single local point in time.
package temporal

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order; the first full match wins. Day-first
// layouts come before ISO so "01/02/2025" is always the 1st of February.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-1-2",
	"2/1/06",
	"2-1-06",
	"2006/1/2",
}

// timeLayouts are tried in order after upper-casing the input. Hours,
// minutes and seconds take one or two digits, so "9:5" is 09:05.
var timeLayouts = []string{
	"15:4",
	"15:4:5",
	"3:4 PM",
	"3:4PM",
}

// DefaultTime is used whenever the time text is blank or unrecognised.
var DefaultTime = TimeOfDay{Hour: 9}

// Date is a calendar date without time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// TimeOfDay is a wall-clock time at second precision.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseError reports date text that matched none of the accepted layouts.
type ParseError struct {
	Text    string
	Context string
}

func (e *ParseError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("unrecognised date %q", e.Text)
	}
	return fmt.Sprintf("[%s] unrecognised date %q", e.Context, e.Text)
}

// ParseDate parses text with the first matching layout. Impossible dates
// such as 31/02/2025 fail every layout and yield a *ParseError carrying
// contextID (normally the record reference).
func ParseDate(text, contextID string) (Date, error) {
	v := strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
	}
	return Date{}, &ParseError{Text: text, Context: contextID}
}

// ParseTime never fails: blank, "nan", "None" and anything unparseable
// return DefaultTime.
func ParseTime(text string) TimeOfDay {
	v := strings.ToUpper(strings.TrimSpace(text))
	if v == "" {
		return DefaultTime
	}
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
	}
	return DefaultTime
}

// Combine merges d and t into a local time. No zone conversion is applied.
func Combine(d Date, t TimeOfDay) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, t.Second, 0, time.Local)
}

// Resolve parses both texts and combines them. Only the date can fail.
func Resolve(dateText, timeText, contextID string) (time.Time, error) {
	d, err := ParseDate(dateText, contextID)
	if err != nil {
		return time.Time{}, err
	}
	return Combine(d, ParseTime(timeText)), nil
}
