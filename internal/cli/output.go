package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"calsync/internal/model"
)

// SyncReport is what `calsync sync` prints when it finishes.
type SyncReport struct {
	DryRun   bool           `json:"dry_run"`
	Counters model.Counters `json:"counters"`
	Elapsed  time.Duration  `json:"-"`
}

// Problem is one row that would fail in a real run.
type Problem struct {
	Row       int    `json:"row,omitempty"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// CheckReport is what `calsync check` prints.
type CheckReport struct {
	Records  int       `json:"records"`
	Dropped  int       `json:"dropped"`
	Valid    int       `json:"valid"`
	Problems []Problem `json:"problems"`
}

// OK reports whether every record would resolve.
func (r CheckReport) OK() bool { return len(r.Problems) == 0 }

// OutputFormatter writes reports as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func (f *OutputFormatter) json(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Sync writes a SyncReport.
func (f *OutputFormatter) Sync(r SyncReport) error {
	if f.Format == "json" {
		out := struct {
			DryRun    bool           `json:"dry_run"`
			Counters  model.Counters `json:"counters"`
			ElapsedMS int64          `json:"elapsed_ms"`
		}{r.DryRun, r.Counters, r.Elapsed.Milliseconds()}
		return f.json(out)
	}

	if r.DryRun {
		fmt.Fprintln(f.Writer, "dry run: no calendar changes were written")
	}
	c := r.Counters
	fmt.Fprintf(f.Writer, "%-10s %d\n", "created", c.Created)
	fmt.Fprintf(f.Writer, "%-10s %d\n", "updated", c.Updated)
	fmt.Fprintf(f.Writer, "%-10s %d\n", "unchanged", c.Unchanged)
	fmt.Fprintf(f.Writer, "%-10s %d\n", "failed", c.Failed)
	_, err := fmt.Fprintf(f.Writer, "%d records in %s\n", c.Total(), r.Elapsed.Round(time.Millisecond))
	return err
}

// Check writes a CheckReport.
func (f *OutputFormatter) Check(r CheckReport) error {
	if f.Format == "json" {
		if r.Problems == nil {
			r.Problems = []Problem{}
		}
		return f.json(r)
	}

	fmt.Fprintf(f.Writer, "%d records, %d valid, %d with problems", r.Records, r.Valid, len(r.Problems))
	if r.Dropped > 0 {
		fmt.Fprintf(f.Writer, ", %d rows ignored", r.Dropped)
	}
	fmt.Fprintln(f.Writer)
	for _, p := range r.Problems {
		if p.Row > 0 {
			fmt.Fprintf(f.Writer, "  row %d [%s]: %s\n", p.Row, p.Reference, p.Message)
			continue
		}
		fmt.Fprintf(f.Writer, "  [%s]: %s\n", p.Reference, p.Message)
	}
	return nil
}
