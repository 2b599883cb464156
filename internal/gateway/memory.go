package gateway

import (
	"context"
	"strconv"
	"strings"

	"calsync/internal/model"
	"calsync/internal/tag"
)

// Memory is an in-process Gateway. It backs tests and the check command.
type Memory struct {
	entries []model.CalendarEntry
	nextID  int

	// Optional fault injection.
	FindErr   error
	CreateErr error
	UpdateErr error

	// Call counts.
	Finds, Creates, Updates int
}

// NewMemory returns a Memory pre-loaded with entries. Entries without a
// handle are assigned one.
func NewMemory(entries ...model.CalendarEntry) *Memory {
	m := &Memory{}
	for _, e := range entries {
		if e.Handle == "" {
			e.Handle = m.newHandle()
		}
		m.entries = append(m.entries, e)
	}
	return m
}

func (m *Memory) newHandle() string {
	m.nextID++
	return "mem-" + strconv.Itoa(m.nextID)
}

// Entries returns a copy of the stored entries in insertion order.
func (m *Memory) Entries() []model.CalendarEntry {
	out := make([]model.CalendarEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Get returns the entry with the given handle.
func (m *Memory) Get(handle string) (model.CalendarEntry, bool) {
	for _, e := range m.entries {
		if e.Handle == handle {
			return e, true
		}
	}
	return model.CalendarEntry{}, false
}

// Mutate applies fn to the stored entry, simulating an out-of-band edit.
func (m *Memory) Mutate(handle string, fn func(*model.CalendarEntry)) bool {
	for i := range m.entries {
		if m.entries[i].Handle == handle {
			fn(&m.entries[i])
			return true
		}
	}
	return false
}

func (m *Memory) FindByTag(_ context.Context, reference string) (*model.CalendarEntry, error) {
	m.Finds++
	if m.FindErr != nil {
		return nil, ReadError(reference, m.FindErr)
	}
	for _, e := range m.entries {
		if tag.Contains(e.Body, reference) {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) Create(_ context.Context, d model.EntryDraft) (string, error) {
	m.Creates++
	if m.CreateErr != nil {
		return "", WriteError(OpCreate, "", m.CreateErr)
	}
	e := model.CalendarEntry{
		Handle:          m.newHandle(),
		Subject:         d.Subject,
		Start:           d.Start,
		DurationMinutes: d.DurationMinutes,
		Body:            d.Body,
		Categories:      strings.TrimSpace(d.Category),
	}
	m.entries = append(m.entries, e)
	return e.Handle, nil
}

func (m *Memory) Update(_ context.Context, handle string, d model.EntryDraft) error {
	m.Updates++
	if m.UpdateErr != nil {
		return WriteError(OpUpdate, handle, m.UpdateErr)
	}
	ok := m.Mutate(handle, func(e *model.CalendarEntry) {
		e.Subject = d.Subject
		e.Start = d.Start
		e.DurationMinutes = d.DurationMinutes
		e.Body = d.Body
		if c := strings.TrimSpace(d.Category); c != "" {
			e.Categories = c
		}
	})
	if !ok {
		return WriteError(OpUpdate, handle, ErrNotFound)
	}
	return nil
}
