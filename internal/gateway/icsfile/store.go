// Package icsfile is a calendar backend stored as a single iCalendar file.
// Each write rewrites the file atomically before returning.
package icsfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"calsync/internal/fsutil"
	"calsync/internal/gateway"
	"calsync/internal/log"
	"calsync/internal/model"
	"calsync/internal/tag"
)

const productID = "-//calsync//deadline sync//EN"

// Store is an iCalendar file opened for reconciliation. It is not safe for
// concurrent use.
type Store struct {
	path string
	cal  *ical.Calendar
	log  *log.Logger
	now  func() time.Time
}

var _ gateway.Gateway = (*Store)(nil)

// Open loads path, or starts an empty calendar if it does not exist yet.
func Open(path string, l *log.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("ics path is empty")
	}
	if l == nil {
		l = log.Nop()
	}
	s := &Store{path: path, log: l, now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.cal = ical.NewCalendar()
		s.cal.SetProductId(productID)
		l.Info("ics calendar not found; starting empty", "path", path)
		return s, nil
	case err != nil:
		return nil, err
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	s.cal = cal
	l.Info("ics calendar loaded", "path", path, "event_count", len(cal.Events()))
	return s, nil
}

// FindByTag scans events in file order and returns the first whose
// DESCRIPTION carries the marker. Events that cannot be read are logged and
// skipped.
func (s *Store) FindByTag(_ context.Context, reference string) (*model.CalendarEntry, error) {
	want := tag.Encode(reference)
	for _, ve := range s.cal.Events() {
		p := ve.GetProperty(ical.ComponentPropertyDescription)
		if p == nil || !strings.Contains(p.Value, want) {
			continue
		}
		e, err := entryFromVEvent(ve)
		if err != nil {
			s.log.Error("ics vevent unreadable", err, "reference", reference)
			continue
		}
		return &e, nil
	}
	return nil, nil
}

func (s *Store) Create(_ context.Context, d model.EntryDraft) (string, error) {
	uid := uuid.NewString() + "@calsync"
	ve := s.cal.AddEvent(uid)
	ve.SetProperty(ical.ComponentPropertyCreated, s.now().UTC().Format("20060102T150405Z"))
	s.apply(ve, d)

	if err := s.save(); err != nil {
		s.removeEvent(uid)
		return "", gateway.WriteError(gateway.OpCreate, "", err)
	}
	return uid, nil
}

func (s *Store) Update(_ context.Context, handle string, d model.EntryDraft) error {
	ve := s.event(handle)
	if ve == nil {
		return gateway.WriteError(gateway.OpUpdate, handle, gateway.ErrNotFound)
	}

	// Snapshot so a failed save leaves the in-memory copy matching disk.
	before := make([]ical.IANAProperty, len(ve.Properties))
	copy(before, ve.Properties)

	seq := 0
	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		seq, _ = strconv.Atoi(strings.TrimSpace(p.Value))
	}
	ve.SetProperty(ical.ComponentPropertySequence, strconv.Itoa(seq+1))
	s.apply(ve, d)

	if err := s.save(); err != nil {
		ve.Properties = before
		return gateway.WriteError(gateway.OpUpdate, handle, err)
	}
	return nil
}

// apply writes the draft fields onto ve. Values are raw text; the encoder
// applies RFC 5545 escaping. CATEGORIES is only touched when the draft
// carries one.
func (s *Store) apply(ve *ical.VEvent, d model.EntryDraft) {
	start := d.Start.In(time.Local)
	end := start.Add(time.Duration(d.DurationMinutes) * time.Minute)

	ve.SetDtStampTime(s.now())
	ve.SetProperty(ical.ComponentPropertyLastModified, s.now().UTC().Format("20060102T150405Z"))
	ve.SetProperty(ical.ComponentPropertySummary, d.Subject)
	ve.SetProperty(ical.ComponentPropertyDtStart, start.Format(floatingLayout))
	ve.SetProperty(ical.ComponentPropertyDtEnd, end.Format(floatingLayout))
	ve.SetProperty(ical.ComponentPropertyDescription, d.Body)
	if c := strings.TrimSpace(d.Category); c != "" {
		ve.SetProperty(ical.ComponentPropertyCategories, c)
	}
}

func (s *Store) event(uid string) *ical.VEvent {
	for _, ve := range s.cal.Events() {
		if ve.Id() == uid {
			return ve
		}
	}
	return nil
}

func (s *Store) removeEvent(uid string) {
	kept := s.cal.Components[:0]
	for _, c := range s.cal.Components {
		if ve, ok := c.(*ical.VEvent); ok && ve.Id() == uid {
			continue
		}
		kept = append(kept, c)
	}
	s.cal.Components = kept
}

func (s *Store) save() error {
	return fsutil.WriteFileAtomic(s.path, []byte(s.cal.Serialize()), 0o644)
}
