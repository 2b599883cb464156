package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"calsync/internal/log"
	"calsync/internal/web"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	DryRun bool
	Listen string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run sync on a cron schedule and serve run status over HTTP",
		Long: `Run one pass immediately, then one per tick of watch.cron. Runs never
overlap: a tick that arrives while a pass is still going is skipped.

GET /health and GET /api/status report liveness and the last run;
POST /api/run starts a pass out of schedule.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log intended writes without performing them")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "HTTP listen address (overrides config if set)")

	return cmd
}

// runner serialises passes started by the scheduler and by /api/run.
type runner struct {
	mu     sync.Mutex
	ctx    context.Context
	app    *app
	dryRun bool
	board  *web.Board
}

// run performs one pass unless one is already in progress. It reports
// whether a pass was performed.
func (r *runner) run() bool {
	if !r.mu.TryLock() {
		r.app.log.Warn("run skipped: previous run still in progress")
		return false
	}
	defer r.mu.Unlock()
	r.pass()
	return true
}

// trigger starts a pass in the background for /api/run.
func (r *runner) trigger() bool {
	if !r.mu.TryLock() {
		return false
	}
	go func() {
		defer r.mu.Unlock()
		r.pass()
	}()
	return true
}

func (r *runner) pass() {
	r.board.Begin()
	st, err := r.app.runOnce(r.ctx, r.dryRun)
	if err != nil {
		r.app.log.Error("run failed", err)
	}
	r.board.Finish(st)
}

func runWatch(cmd *cobra.Command, rootOpts *RootOptions, opts *WatchOptions) error {
	a, err := newApp(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	watchCfg := a.cfg.Watch
	if opts.Listen != "" {
		watchCfg.Listen = opts.Listen
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			a.log.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	r := &runner{ctx: ctx, app: a, dryRun: opts.DryRun, board: &web.Board{}}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{a.log})))
	if _, err := c.AddFunc(watchCfg.Cron, func() { r.run() }); err != nil {
		return fmt.Errorf("invalid watch.cron %q: %w", watchCfg.Cron, err)
	}

	errCh := make(chan error, 1)
	if watchCfg.Listen != "" {
		srv := web.NewServer(watchCfg, r.board, r.trigger, a.log)
		go func() { errCh <- srv.Serve(ctx) }()
	}

	a.log.Info("watch started", "cron", watchCfg.Cron, "listen", watchCfg.Listen, "dry_run", opts.DryRun)
	r.run()
	c.Start()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			a.log.Error("http server stopped", err)
			cancel()
			<-c.Stop().Done()
			return fmt.Errorf("http server: %w", err)
		}
	}

	// Wait for an in-flight pass to finish before exiting.
	<-c.Stop().Done()
	r.mu.Lock()
	defer r.mu.Unlock()
	a.log.Info("calsync exiting")
	return nil
}

// cronLogger adapts log.Logger to cron.Logger.
type cronLogger struct{ l *log.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) { c.l.Error("cron: "+msg, err, kv...) }

var _ cron.Logger = cronLogger{}
