package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"calsync/internal/gateway"
	"calsync/internal/model"
	"calsync/internal/reconcile"
	"calsync/internal/sheet"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the spreadsheet without touching the calendar",
		Long: `Read the spreadsheet and resolve every row against an empty in-memory
calendar. Reports unparseable dates and references repeated within the
sheet. Exits non-zero when any problem is found.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, rootOpts)
		},
	}
	return cmd
}

func runCheck(cmd *cobra.Command, rootOpts *RootOptions) error {
	a, err := newApp(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	tbl, err := a.readSheet(cmd.Context())
	if err != nil {
		return err
	}

	report := checkTable(cmd.Context(), tbl, a.cfg.Calendar.DurationMinutes)
	f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if err := f.Check(report); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d of %d records have problems", len(report.Problems), report.Records)
	}
	return nil
}

// checkTable resolves every record against a fresh in-memory calendar. A
// first occurrence must be a create; anything else means the reference
// appeared earlier in the sheet.
func checkTable(ctx context.Context, tbl *sheet.Table, durationMinutes int) CheckReport {
	report := CheckReport{Records: len(tbl.Records), Dropped: tbl.Dropped}
	eng := reconcile.New(gateway.NewMemory(), durationMinutes)

	for _, rec := range tbl.Records {
		res := eng.Resolve(ctx, rec)
		switch res.Outcome {
		case model.OutcomeCreate:
			report.Valid++
		case model.OutcomeFail:
			report.Problems = append(report.Problems, Problem{Row: rec.Row, Reference: res.Reference, Message: res.Err.Error()})
		default:
			report.Problems = append(report.Problems, Problem{Row: rec.Row, Reference: res.Reference, Message: "duplicate reference"})
		}
	}
	return report
}
