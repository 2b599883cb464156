package model

import (
	"fmt"
	"time"
)

// ScheduleRecord is one normalized spreadsheet row. Reference and Title are
// guaranteed non-empty by the sheet reader; the remaining text fields are
// raw and may be blank.
type ScheduleRecord struct {
	Reference string
	Title     string

	DateText string
	TimeText string

	Description string
	Category    string

	// Row is the 1-based spreadsheet row, used only for log context.
	Row int
}

// ResolvedEvent is a ScheduleRecord with its start time parsed and the
// run-wide duration applied. It is built once per record per run.
type ResolvedEvent struct {
	Reference string

	Start           time.Time
	DurationMinutes int

	Title       string
	Description string
	Category    string
}

// CalendarEntry is the view of a backend entry the engine compares against.
// Handle is opaque and only meaningful to the gateway that produced it.
type CalendarEntry struct {
	Handle string

	Subject         string
	Start           time.Time // zero when the backend value could not be read
	DurationMinutes int
	Body            string
	Categories      string

	// Recurring is set when the backend entry is a recurring series. The
	// engine treats it as a single opaque item.
	Recurring bool
}

// EntryDraft carries the fields written on create and update. A blank
// Category leaves any existing backend category untouched.
type EntryDraft struct {
	Subject         string
	Start           time.Time
	DurationMinutes int
	Body            string
	Category        string
}

// Outcome classifies what happened to one record.
type Outcome int

const (
	OutcomeFail Outcome = iota
	OutcomeCreate
	OutcomeUpdate
	OutcomeSkip
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreate:
		return "CREATE"
	case OutcomeUpdate:
		return "UPDATE"
	case OutcomeSkip:
		return "SKIP"
	case OutcomeFail:
		return "FAIL"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Counters aggregates outcomes for one run. They are never persisted.
type Counters struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Add increments the counter matching o.
func (c *Counters) Add(o Outcome) {
	switch o {
	case OutcomeCreate:
		c.Created++
	case OutcomeUpdate:
		c.Updated++
	case OutcomeSkip:
		c.Unchanged++
	default:
		c.Failed++
	}
}

// Total is the number of records accounted for.
func (c Counters) Total() int {
	return c.Created + c.Updated + c.Unchanged + c.Failed
}
