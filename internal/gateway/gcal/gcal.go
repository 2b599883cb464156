// Package gcal is a calendar backend on the Google Calendar API.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calsync/internal/gateway"
	"calsync/internal/log"
	"calsync/internal/model"
	"calsync/internal/tag"
)

// categoryKey holds the category in the event's private extended
// properties; Google events have no category field of their own.
const categoryKey = "calsync.category"

const pageSize = 250

// Options configures a Gateway.
type Options struct {
	// CalendarName is a calendar ID, a calendar summary, or one of
	// "", "default", "predefinito", "primary" for the primary calendar.
	CalendarName    string
	CredentialsFile string
	// Timezone is an IANA name. Local wall times are written in that zone
	// and read back from it. Empty sends RFC 3339 times with the host's UTC
	// offset and no zone name.
	Timezone string
	// ClientOptions are appended after the ones derived above.
	ClientOptions []option.ClientOption
}

// Gateway talks to one Google calendar.
type Gateway struct {
	svc        *calendar.Service
	calendarID string
	tz         string
	loc        *time.Location
	log        *log.Logger
}

var _ gateway.Gateway = (*Gateway)(nil)

// New builds the API client and resolves the calendar by name.
func New(ctx context.Context, opts Options, l *log.Logger) (*Gateway, error) {
	if l == nil {
		l = log.Nop()
	}

	var co []option.ClientOption
	if opts.CredentialsFile != "" {
		co = append(co, option.WithCredentialsFile(opts.CredentialsFile))
	}
	co = append(co, opts.ClientOptions...)

	var loc *time.Location
	if opts.Timezone != "" {
		l, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("google timezone %q: %w", opts.Timezone, err)
		}
		loc = l
	}

	svc, err := calendar.NewService(ctx, co...)
	if err != nil {
		return nil, fmt.Errorf("google calendar client: %w", err)
	}

	g := &Gateway{svc: svc, tz: opts.Timezone, loc: loc, log: l}
	id, err := g.resolveCalendar(ctx, opts.CalendarName)
	if err != nil {
		return nil, err
	}
	g.calendarID = id
	l.Info("google calendar selected", "calendar_id", id)
	return g, nil
}

// resolveCalendar maps a configured name to a calendar ID. Default aliases
// select the primary calendar; otherwise the calendar list is searched by
// ID and then by summary, case-insensitively.
func (g *Gateway) resolveCalendar(ctx context.Context, name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "predefinito", "primary":
		return "primary", nil
	}

	var found string
	err := g.svc.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
		for _, c := range page.Items {
			if c.Id == name || strings.EqualFold(c.Summary, name) {
				found = c.Id
				return errStop
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return "", fmt.Errorf("list calendars: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("calendar %q not found", name)
	}
	return found, nil
}

var errStop = errors.New("stop paging")

// FindByTag uses the API full-text search and confirms the marker in the
// description. If the search call fails, every event is listed and scanned.
// With duplicates the first event in API order wins.
func (g *Gateway) FindByTag(ctx context.Context, reference string) (*model.CalendarEntry, error) {
	want := tag.Encode(reference)

	ev, err := g.scan(ctx, want, want)
	if err == nil {
		return ev, nil
	}

	g.log.Warn("event search failed, falling back to full scan", "reference", reference, "err", err)
	ev, err = g.scan(ctx, "", want)
	if err != nil {
		return nil, gateway.ReadError(reference, err)
	}
	return ev, nil
}

func (g *Gateway) scan(ctx context.Context, query, want string) (*model.CalendarEntry, error) {
	call := g.svc.Events.List(g.calendarID).
		SingleEvents(false).
		ShowDeleted(false).
		MaxResults(pageSize).
		Context(ctx)
	if query != "" {
		call = call.Q(query)
	}

	var found *model.CalendarEntry
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, ev := range page.Items {
			if strings.Contains(ev.Description, want) {
				e := g.toEntry(ev)
				found = &e
				return errStop
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return found, nil
}

func (g *Gateway) Create(ctx context.Context, d model.EntryDraft) (string, error) {
	ev := g.toEvent(d)
	ev.Reminders = &calendar.EventReminders{UseDefault: false, ForceSendFields: []string{"UseDefault"}}

	created, err := g.svc.Events.Insert(g.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", gateway.WriteError(gateway.OpCreate, "", err)
	}
	return created.Id, nil
}

func (g *Gateway) Update(ctx context.Context, handle string, d model.EntryDraft) error {
	if _, err := g.svc.Events.Patch(g.calendarID, handle, g.toEvent(d)).Context(ctx).Do(); err != nil {
		return gateway.WriteError(gateway.OpUpdate, handle, err)
	}
	return nil
}

func (g *Gateway) toEvent(d model.EntryDraft) *calendar.Event {
	start := d.Start.In(time.Local)
	end := start.Add(time.Duration(d.DurationMinutes) * time.Minute)

	ev := &calendar.Event{
		Summary:     d.Subject,
		Description: d.Body,
		Start:       g.dateTime(start),
		End:         g.dateTime(end),
	}
	if c := strings.TrimSpace(d.Category); c != "" {
		ev.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{categoryKey: c},
		}
	}
	return ev
}

// dateTime keeps the wall clock of t. With a configured zone the same wall
// clock is placed in that zone.
func (g *Gateway) dateTime(t time.Time) *calendar.EventDateTime {
	if g.loc != nil {
		wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, g.loc)
		return &calendar.EventDateTime{DateTime: wall.Format(time.RFC3339), TimeZone: g.tz}
	}
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
}

func (g *Gateway) toEntry(ev *calendar.Event) model.CalendarEntry {
	e := model.CalendarEntry{
		Handle:    ev.Id,
		Subject:   ev.Summary,
		Body:      ev.Description,
		Recurring: len(ev.Recurrence) > 0,
	}
	e.Start = g.parseDateTime(ev.Start)
	if end := g.parseDateTime(ev.End); !e.Start.IsZero() && end.After(e.Start) {
		e.DurationMinutes = int(end.Sub(e.Start) / time.Minute)
	}
	if ev.ExtendedProperties != nil {
		e.Categories = ev.ExtendedProperties.Private[categoryKey]
	}
	return e
}

// parseDateTime returns local wall time, or zero when the value is absent
// or unreadable. With a configured zone the wall clock in that zone is
// carried over to time.Local unchanged, mirroring dateTime.
func (g *Gateway) parseDateTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil && g.loc != nil {
			t, err = time.ParseInLocation("2006-01-02T15:04:05", dt.DateTime, g.loc)
		}
		if err != nil {
			return time.Time{}
		}
		if g.loc == nil {
			return t.In(time.Local)
		}
		t = t.In(g.loc)
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, time.Local)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}
