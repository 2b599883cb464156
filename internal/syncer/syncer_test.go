package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/gateway"
	"calsync/internal/log"
	"calsync/internal/model"
)

func records() []model.ScheduleRecord {
	return []model.ScheduleRecord{
		{Reference: "INV-001", Title: "Pay invoice", DateText: "15/03/2025", Category: "Finance", Row: 2},
		{Reference: "INV-002", Title: "Broken date", DateText: "31/02/2025", Row: 3},
		{Reference: "TAX-01", Title: "File taxes", DateText: "2025-06-30", TimeText: "10:00", Row: 4},
	}
}

func jsonLogger(t *testing.T, buf *bytes.Buffer) *log.Logger {
	t.Helper()
	l, err := log.New(log.Options{Format: "json", Writer: buf, NoTimestamp: true})
	require.NoError(t, err)
	return l
}

func messages(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestRunCounts(t *testing.T) {
	gw := gateway.NewMemory()
	var buf bytes.Buffer
	s := New(gw, jsonLogger(t, &buf))

	got := s.Run(context.Background(), records(), 60)
	assert.Equal(t, model.Counters{Created: 2, Failed: 1}, got)

	again := s.Run(context.Background(), records(), 60)
	assert.Equal(t, model.Counters{Unchanged: 2, Failed: 1}, again)
	assert.Len(t, gw.Entries(), 2)
}

func TestRunLogsOneLinePerRecordAndSummary(t *testing.T) {
	var buf bytes.Buffer
	s := New(gateway.NewMemory(), jsonLogger(t, &buf))
	s.Run(context.Background(), records(), 60)

	lines := messages(t, &buf)
	// banner + 3 records + 4 summary lines
	require.Len(t, lines, 8)

	assert.Equal(t, "created", lines[1]["message"])
	assert.Equal(t, "INV-001", lines[1]["reference"])
	assert.Equal(t, "15/03/2025 09:00", lines[1]["start"])

	assert.Equal(t, "failed", lines[2]["message"])
	assert.Equal(t, "error", lines[2]["level"])
	assert.Contains(t, lines[2]["error"], "31/02/2025")

	var summary []string
	for _, l := range lines[4:] {
		summary = append(summary, l["message"].(string))
	}
	assert.Equal(t, []string{
		"summary: created",
		"summary: updated",
		"summary: unchanged",
		"summary: failed",
	}, summary)
	assert.EqualValues(t, 1, lines[7]["count"])
}

func TestRunCompletesWhenEveryRecordFails(t *testing.T) {
	gw := gateway.NewMemory()
	gw.FindErr = errors.New("offline")

	got := New(gw, nil).Run(context.Background(), records(), 60)
	assert.Equal(t, model.Counters{Failed: 3}, got)
	assert.Equal(t, 3, got.Total())
}

func TestCountersResetPerRun(t *testing.T) {
	s := New(gateway.NewMemory(), nil)
	first := s.Run(context.Background(), records()[:1], 60)
	second := s.Run(context.Background(), nil, 60)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, model.Counters{}, second)
}

func TestAmbiguousReferenceWarns(t *testing.T) {
	var buf bytes.Buffer
	s := New(gateway.NewMemory(), jsonLogger(t, &buf))
	s.Run(context.Background(), []model.ScheduleRecord{{Reference: "A]B", Title: "t", DateText: "01/01/2025"}}, 60)

	lines := messages(t, &buf)
	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "created", lines[2]["message"])
}
