package gateway

import (
	"context"
	"time"

	"calsync/internal/log"
	"calsync/internal/model"
)

// DryRun forwards lookups to Backend and logs writes instead of issuing them.
type DryRun struct {
	Backend Gateway
	Log     *log.Logger
}

func (d *DryRun) FindByTag(ctx context.Context, reference string) (*model.CalendarEntry, error) {
	return d.Backend.FindByTag(ctx, reference)
}

func (d *DryRun) Create(_ context.Context, draft model.EntryDraft) (string, error) {
	d.Log.Info("dry-run: would create entry",
		"subject", draft.Subject,
		"start", draft.Start.Format(time.DateTime),
		"duration_minutes", draft.DurationMinutes,
	)
	return "dry-run", nil
}

func (d *DryRun) Update(_ context.Context, handle string, draft model.EntryDraft) error {
	d.Log.Info("dry-run: would update entry",
		"handle", handle,
		"subject", draft.Subject,
		"start", draft.Start.Format(time.DateTime),
	)
	return nil
}
