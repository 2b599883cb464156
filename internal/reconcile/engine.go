// Package reconcile decides, per spreadsheet record, whether the calendar
// needs a new entry, a rewrite of an existing one, or nothing at all.
package reconcile

import (
	"context"
	"strings"
	"time"

	"calsync/internal/gateway"
	"calsync/internal/model"
	"calsync/internal/tag"
	"calsync/internal/temporal"
)

// StartTolerance is the largest start-time drift not treated as a change.
const StartTolerance = 60 * time.Second

// Result is the engine's decision for one record. Err is set only when
// Outcome is OutcomeFail.
type Result struct {
	Reference string
	Title     string
	Start     time.Time
	Outcome   model.Outcome
	Recurring bool
	Err       error
}

// Engine resolves records against a Gateway. It holds no per-record state.
type Engine struct {
	gw       gateway.Gateway
	duration int
}

// New returns an Engine writing entries of durationMinutes length.
func New(gw gateway.Gateway, durationMinutes int) *Engine {
	return &Engine{gw: gw, duration: durationMinutes}
}

// Event parses rec into a ResolvedEvent. A date the parser rejects yields
// a *temporal.ParseError.
func (e *Engine) Event(rec model.ScheduleRecord) (model.ResolvedEvent, error) {
	start, err := temporal.Resolve(rec.DateText, rec.TimeText, rec.Reference)
	if err != nil {
		return model.ResolvedEvent{}, err
	}
	return model.ResolvedEvent{
		Reference:       strings.TrimSpace(rec.Reference),
		Start:           start,
		DurationMinutes: e.duration,
		Title:           strings.TrimSpace(rec.Title),
		Description:     strings.TrimSpace(rec.Description),
		Category:        strings.TrimSpace(rec.Category),
	}, nil
}

// Resolve runs the create/update/skip decision for one record. Every error
// is folded into an OutcomeFail result; Resolve itself never fails.
func (e *Engine) Resolve(ctx context.Context, rec model.ScheduleRecord) Result {
	res := Result{Reference: rec.Reference, Title: rec.Title}

	ev, err := e.Event(rec)
	if err != nil {
		return fail(res, err)
	}
	res.Reference, res.Title, res.Start = ev.Reference, ev.Title, ev.Start

	existing, err := e.gw.FindByTag(ctx, ev.Reference)
	if err != nil {
		return fail(res, err)
	}

	draft := model.EntryDraft{
		Subject:         ev.Title,
		Start:           ev.Start,
		DurationMinutes: ev.DurationMinutes,
		Body:            tag.BuildBody(ev.Description, ev.Reference),
		Category:        ev.Category,
	}

	if existing == nil {
		if _, err := e.gw.Create(ctx, draft); err != nil {
			return fail(res, err)
		}
		res.Outcome = model.OutcomeCreate
		return res
	}

	res.Recurring = existing.Recurring
	if !IsChanged(*existing, ev.Title, ev.Start, ev.Category) {
		res.Outcome = model.OutcomeSkip
		return res
	}

	if err := e.gw.Update(ctx, existing.Handle, draft); err != nil {
		return fail(res, err)
	}
	res.Outcome = model.OutcomeUpdate
	return res
}

func fail(res Result, err error) Result {
	res.Outcome = model.OutcomeFail
	res.Err = err
	return res
}

// IsChanged reports whether existing differs from the incoming fields:
// subject, start beyond StartTolerance, or a non-blank category. A blank
// incoming category never counts as a change. An unreadable (zero) existing
// start always counts as a change. Description and duration are not
// compared.
func IsChanged(existing model.CalendarEntry, title string, start time.Time, category string) bool {
	if strings.TrimSpace(existing.Subject) != strings.TrimSpace(title) {
		return true
	}

	if existing.Start.IsZero() {
		return true
	}
	drift := existing.Start.Truncate(time.Second).Sub(start.Truncate(time.Second))
	if drift < 0 {
		drift = -drift
	}
	if drift > StartTolerance {
		return true
	}

	c := strings.TrimSpace(category)
	return c != "" && strings.TrimSpace(existing.Categories) != c
}
