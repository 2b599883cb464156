package cli

import (
	"github.com/spf13/cobra"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	DryRun bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass",
		Long: `Read the spreadsheet and create or update one calendar entry per row.

Rows that fail (bad date, backend error) are logged and counted; they do
not stop the run. With --dry-run the calendar is read but never written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log intended writes without performing them")

	return cmd
}

func runSync(cmd *cobra.Command, rootOpts *RootOptions, opts *SyncOptions) error {
	a, err := newApp(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.runOnce(cmd.Context(), opts.DryRun)
	if err != nil {
		a.log.Error("sync aborted", err)
		return err
	}

	f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	return f.Sync(SyncReport{
		DryRun:   opts.DryRun,
		Counters: st.Counters,
		Elapsed:  st.FinishedAt.Sub(st.StartedAt),
	})
}
