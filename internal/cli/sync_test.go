package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/model"
	"calsync/internal/sheet"
)

const sampleCSV = `Riferimento,Titolo,Data,Ora,Descrizione,Categoria
INV-001,Pay invoice,15/03/2025,14:30,Quarterly,Finance
INV-002,Broken date,31/02/2025,,,
INV-003,Renew domain,2025-04-01,,,
`

// writeFixture lays out a sheet and a config in a temp dir and returns the
// config path and the calendar path.
func writeFixture(t *testing.T, csv string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	sheetPath := filepath.Join(dir, "scadenze.csv")
	icsPath := filepath.Join(dir, "cal.ics")
	cfgPath := filepath.Join(dir, "calsync.yaml")

	require.NoError(t, os.WriteFile(sheetPath, []byte(csv), 0o644))
	cfg := fmt.Sprintf(`sheet:
  path: %s
calendar:
  backend: ics
  ics_path: %s
log:
  level: info
  format: json
watch:
  cron: "0 * * * *"
`, sheetPath, icsPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, icsPath
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func syncCounters(t *testing.T, out string) model.Counters {
	t.Helper()
	var got struct {
		Counters model.Counters `json:"counters"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	return got.Counters
}

func TestSyncIsIdempotent(t *testing.T) {
	cfgPath, icsPath := writeFixture(t, sampleCSV)

	out, logs, err := execute(t, "--config", cfgPath, "--format", "json", "sync")
	require.NoError(t, err, logs)
	assert.Equal(t, model.Counters{Created: 2, Failed: 1}, syncCounters(t, out))
	assert.FileExists(t, icsPath)
	assert.Contains(t, logs, "sync started")

	out, logs, err = execute(t, "--config", cfgPath, "--format", "json", "sync")
	require.NoError(t, err, logs)
	assert.Equal(t, model.Counters{Unchanged: 2, Failed: 1}, syncCounters(t, out))
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	cfgPath, icsPath := writeFixture(t, sampleCSV)

	out, logs, err := execute(t, "--config", cfgPath, "--format", "json", "sync", "--dry-run")
	require.NoError(t, err, logs)
	assert.Equal(t, model.Counters{Created: 2, Failed: 1}, syncCounters(t, out))
	assert.NoFileExists(t, icsPath)
	assert.Contains(t, logs, "would create entry")
}

func TestSyncMissingSheetAborts(t *testing.T) {
	cfgPath, _ := writeFixture(t, sampleCSV)
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(cfgPath), "scadenze.csv")))

	_, _, err := execute(t, "--config", cfgPath, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read sheet")
}

func TestCheckCommand(t *testing.T) {
	cfgPath, icsPath := writeFixture(t, sampleCSV+"INV-001,Again,16/03/2025,,,\n")

	out, _, err := execute(t, "--config", cfgPath, "check")
	require.Error(t, err)
	assert.Contains(t, out, "4 records, 2 valid, 2 with problems")
	assert.Contains(t, out, "row 3 [INV-002]")
	assert.Contains(t, out, "row 5 [INV-001]: duplicate reference")
	assert.NoFileExists(t, icsPath)

	clean, _ := writeFixture(t, "Riferimento,Titolo,Data\nA,Title,01/01/2026\n")
	out, _, err = execute(t, "--config", clean, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "1 records, 1 valid, 0 with problems")
}

func TestCheckTable(t *testing.T) {
	tbl := &sheet.Table{
		Records: []model.ScheduleRecord{
			{Reference: "A", Title: "ok", DateText: "01/02/2025", Row: 2},
			{Reference: "B", Title: "bad", DateText: "someday", Row: 3},
		},
		Dropped: 1,
	}
	r := checkTable(context.Background(), tbl, 60)
	assert.Equal(t, 2, r.Records)
	assert.Equal(t, 1, r.Valid)
	assert.Equal(t, 1, r.Dropped)
	require.Len(t, r.Problems, 1)
	assert.Equal(t, "B", r.Problems[0].Reference)
	assert.Contains(t, r.Problems[0].Message, `"someday"`)
}
