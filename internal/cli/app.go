package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"google.golang.org/api/option"

	"calsync/internal/config"
	"calsync/internal/gateway"
	"calsync/internal/gateway/gcal"
	"calsync/internal/gateway/icsfile"
	"calsync/internal/gateway/sqlitecal"
	"calsync/internal/log"
	"calsync/internal/sheet"
	"calsync/internal/syncer"
)

// app is the per-invocation state shared by commands.
type app struct {
	cfg *config.Config
	log *log.Logger
}

// newApp loads the config and builds the logger. Logs go to logOut so that
// stdout stays clean for --format json.
func newApp(opts *RootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	l, err := log.New(log.Options{
		Level:  level,
		Format: cfg.Log.Format,
		Writer: logOut,
		Dir:    cfg.Log.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	l.Info("calsync starting",
		"config", opts.ConfigPath,
		"backend", cfg.Calendar.Backend,
		"calendar", cfg.Calendar.Name,
		"duration_minutes", cfg.Calendar.DurationMinutes,
	)
	return &app{cfg: cfg, log: l}, nil
}

func (a *app) close() {
	_ = a.log.Close()
}

// readSheet downloads the sheet when it is remote and reads it.
func (a *app) readSheet(ctx context.Context) (*sheet.Table, error) {
	path := a.cfg.Sheet.Path
	if sheet.IsRemote(path) {
		local, err := sheet.NewFetcher(a.cfg.Sheet.CacheDir, a.log).Fetch(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("fetch sheet: %w", err)
		}
		path = local
	}

	tbl, err := sheet.ReadFile(path, a.cfg.Sheet.Name)
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if tbl.Dropped > 0 {
		a.log.Warn("rows without reference or title ignored", "count", tbl.Dropped)
	}
	a.log.Info("sheet loaded", "rows", len(tbl.Records))
	return tbl, nil
}

// openGateway opens the configured backend. The returned close func is
// never nil.
func (a *app) openGateway(ctx context.Context) (gateway.Gateway, func() error, error) {
	noop := func() error { return nil }
	c := a.cfg.Calendar

	switch c.Backend {
	case "ics":
		s, err := icsfile.Open(c.ICSPath, a.log)
		if err != nil {
			return nil, noop, fmt.Errorf("open ics calendar: %w", err)
		}
		return s, noop, nil
	case "sqlite":
		s, err := sqlitecal.Open(c.SQLitePath, a.log)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite calendar: %w", err)
		}
		return s, s.Close, nil
	case "google":
		var extra []option.ClientOption
		if c.Google.Endpoint != "" {
			extra = append(extra, option.WithEndpoint(c.Google.Endpoint))
		}
		g, err := gcal.New(ctx, gcal.Options{
			CalendarName:    c.Name,
			CredentialsFile: c.Google.CredentialsFile,
			Timezone:        c.Google.Timezone,
			ClientOptions:   extra,
		}, a.log)
		if err != nil {
			return nil, noop, fmt.Errorf("open google calendar: %w", err)
		}
		return g, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown calendar backend %q", c.Backend)
	}
}

// runOnce performs one full pass: read the sheet, open the backend, and
// reconcile every record. Errors are collaborator failures only; record
// failures are counted in the status.
func (a *app) runOnce(ctx context.Context, dryRun bool) (syncer.Status, error) {
	st := syncer.Status{StartedAt: time.Now()}
	fail := func(err error) (syncer.Status, error) {
		st.FinishedAt = time.Now()
		st.Err = err.Error()
		return st, err
	}

	tbl, err := a.readSheet(ctx)
	if err != nil {
		return fail(err)
	}

	gw, closeGW, err := a.openGateway(ctx)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := closeGW(); err != nil {
			a.log.Error("close calendar", err)
		}
	}()

	if dryRun {
		a.log.Info("dry run: no calendar writes will be made")
		gw = &gateway.DryRun{Backend: gw, Log: a.log}
	}

	st.Counters = syncer.New(gw, a.log).Run(ctx, tbl.Records, a.cfg.Calendar.DurationMinutes)
	st.FinishedAt = time.Now()
	return st, nil
}
