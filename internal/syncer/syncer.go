// Package syncer drives one reconciliation pass over all records and keeps
// the outcome counters.
package syncer

import (
	"context"
	"time"

	"calsync/internal/gateway"
	"calsync/internal/log"
	"calsync/internal/model"
	"calsync/internal/reconcile"
	"calsync/internal/tag"
)

// Syncer runs records through a reconcile.Engine one at a time.
type Syncer struct {
	gw  gateway.Gateway
	log *log.Logger
}

// New returns a Syncer writing through gw and logging to l.
func New(gw gateway.Gateway, l *log.Logger) *Syncer {
	if l == nil {
		l = log.Nop()
	}
	return &Syncer{gw: gw, log: l}
}

// Run resolves every record in order and returns fresh counters. A failed
// record is logged and counted; it never stops the loop.
func (s *Syncer) Run(ctx context.Context, records []model.ScheduleRecord, durationMinutes int) model.Counters {
	var counters model.Counters
	eng := reconcile.New(s.gw, durationMinutes)

	s.log.Info("sync started", "records", len(records), "duration_minutes", durationMinutes)

	for _, rec := range records {
		if !tag.Valid(rec.Reference) {
			s.log.Warn("reference contains tag delimiters; matching may be ambiguous", "reference", rec.Reference)
		}

		res := eng.Resolve(ctx, rec)
		counters.Add(res.Outcome)
		s.report(rec, res)
	}

	s.Summary(counters)
	return counters
}

func (s *Syncer) report(rec model.ScheduleRecord, res reconcile.Result) {
	kv := []any{"reference", res.Reference, "title", res.Title}
	if !res.Start.IsZero() {
		kv = append(kv, "start", res.Start.Format("02/01/2006 15:04"))
	}
	if rec.Row > 0 {
		kv = append(kv, "row", rec.Row)
	}
	if res.Recurring {
		kv = append(kv, "recurring", true)
	}

	switch res.Outcome {
	case model.OutcomeCreate:
		s.log.Info("created", kv...)
	case model.OutcomeUpdate:
		s.log.Info("updated", kv...)
	case model.OutcomeSkip:
		s.log.Info("unchanged", kv...)
	default:
		s.log.Error("failed", res.Err, kv...)
	}
}

// Summary logs the four counters, one per line.
func (s *Syncer) Summary(c model.Counters) {
	s.log.Info("summary: created", "count", c.Created)
	s.log.Info("summary: updated", "count", c.Updated)
	s.log.Info("summary: unchanged", "count", c.Unchanged)
	s.log.Info("summary: failed", "count", c.Failed)
}

// Status is the result of the most recent run, as exposed by watch mode.
type Status struct {
	Counters   model.Counters `json:"counters"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Err        string         `json:"error,omitempty"`
}
