package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/gateway"
	"calsync/internal/model"
	"calsync/internal/tag"
	"calsync/internal/temporal"
)

func invoice() model.ScheduleRecord {
	return model.ScheduleRecord{
		Reference: "INV-001",
		Title:     "Pay invoice",
		DateText:  "15/03/2025",
		TimeText:  "",
		Category:  "Finance",
	}
}

func TestCreateWhenAbsent(t *testing.T) {
	gw := gateway.NewMemory()
	res := New(gw, 60).Resolve(context.Background(), invoice())

	require.NoError(t, res.Err)
	assert.Equal(t, model.OutcomeCreate, res.Outcome)

	entries := gw.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "Pay invoice", e.Subject)
	assert.Equal(t, time.Date(2025, 3, 15, 9, 0, 0, 0, time.Local), e.Start)
	assert.Equal(t, 60, e.DurationMinutes)
	assert.Equal(t, "Finance", e.Categories)
	assert.True(t, strings.HasSuffix(e.Body, "[REF:INV-001]"))
}

func TestSecondPassSkips(t *testing.T) {
	gw := gateway.NewMemory()
	eng := New(gw, 60)

	first := eng.Resolve(context.Background(), invoice())
	second := eng.Resolve(context.Background(), invoice())

	assert.Equal(t, model.OutcomeCreate, first.Outcome)
	assert.Equal(t, model.OutcomeSkip, second.Outcome)
	assert.Equal(t, 1, gw.Creates)
	assert.Equal(t, 0, gw.Updates)
	assert.Len(t, gw.Entries(), 1)
}

func TestUpdateWhenTitleChanged(t *testing.T) {
	gw := gateway.NewMemory()
	eng := New(gw, 60)
	eng.Resolve(context.Background(), invoice())

	rec := invoice()
	rec.Title = "Pay invoice now"
	rec.Description = "ring accounting"
	res := eng.Resolve(context.Background(), rec)

	assert.Equal(t, model.OutcomeUpdate, res.Outcome)
	e := gw.Entries()[0]
	assert.Equal(t, "Pay invoice now", e.Subject)
	assert.Equal(t, "ring accounting\n\n[REF:INV-001]", e.Body)
}

func TestDescriptionOnlyChangeIsSkipped(t *testing.T) {
	gw := gateway.NewMemory()
	eng := New(gw, 60)
	eng.Resolve(context.Background(), invoice())

	rec := invoice()
	rec.Description = "new notes"
	assert.Equal(t, model.OutcomeSkip, eng.Resolve(context.Background(), rec).Outcome)
}

func TestInvalidDateFailsWithoutGatewayCall(t *testing.T) {
	gw := gateway.NewMemory()
	rec := invoice()
	rec.DateText = "31/02/2025"

	res := New(gw, 60).Resolve(context.Background(), rec)
	assert.Equal(t, model.OutcomeFail, res.Outcome)

	var pe *temporal.ParseError
	require.True(t, errors.As(res.Err, &pe))
	assert.Equal(t, "INV-001", pe.Context)
	assert.Zero(t, gw.Finds+gw.Creates+gw.Updates)
}

func TestGatewayFailures(t *testing.T) {
	cause := errors.New("backend down")

	t.Run("find", func(t *testing.T) {
		gw := gateway.NewMemory()
		gw.FindErr = cause
		res := New(gw, 60).Resolve(context.Background(), invoice())
		assert.Equal(t, model.OutcomeFail, res.Outcome)
		assert.True(t, errors.Is(res.Err, gateway.ErrRead))
		assert.Zero(t, gw.Creates)
	})

	t.Run("create", func(t *testing.T) {
		gw := gateway.NewMemory()
		gw.CreateErr = cause
		res := New(gw, 60).Resolve(context.Background(), invoice())
		assert.Equal(t, model.OutcomeFail, res.Outcome)
		assert.True(t, errors.Is(res.Err, gateway.ErrWrite))
	})

	t.Run("update leaves entry untouched", func(t *testing.T) {
		gw := gateway.NewMemory(model.CalendarEntry{
			Subject: "Old",
			Start:   time.Date(2025, 3, 15, 9, 0, 0, 0, time.Local),
			Body:    tag.Encode("INV-001"),
		})
		gw.UpdateErr = cause
		res := New(gw, 60).Resolve(context.Background(), invoice())
		assert.Equal(t, model.OutcomeFail, res.Outcome)
		assert.True(t, errors.Is(res.Err, gateway.ErrWrite))
		assert.Equal(t, "Old", gw.Entries()[0].Subject)
	})
}

func TestRecurringMatchIsOpaque(t *testing.T) {
	start := time.Date(2025, 3, 15, 9, 0, 0, 0, time.Local)
	gw := gateway.NewMemory(model.CalendarEntry{
		Subject:    "Pay invoice",
		Start:      start,
		Body:       tag.Encode("INV-001"),
		Categories: "Finance",
		Recurring:  true,
	})
	res := New(gw, 60).Resolve(context.Background(), invoice())
	assert.Equal(t, model.OutcomeSkip, res.Outcome)
	assert.True(t, res.Recurring)
}

func TestIsChanged(t *testing.T) {
	start := time.Date(2025, 3, 15, 9, 0, 0, 0, time.Local)
	base := model.CalendarEntry{Subject: "Pay invoice", Start: start, Categories: "Finance"}

	tests := []struct {
		name     string
		mutate   func(*model.CalendarEntry)
		title    string
		start    time.Time
		category string
		want     bool
	}{
		{"identical", nil, "Pay invoice", start, "Finance", false},
		{"subject whitespace", func(e *model.CalendarEntry) { e.Subject = " Pay invoice " }, "Pay invoice", start, "Finance", false},
		{"subject differs", nil, "Pay bill", start, "Finance", true},
		{"60s later", nil, "Pay invoice", start.Add(60 * time.Second), "Finance", false},
		{"60s earlier", nil, "Pay invoice", start.Add(-60 * time.Second), "Finance", false},
		{"61s later", nil, "Pay invoice", start.Add(61 * time.Second), "Finance", true},
		{"sub-second noise", func(e *model.CalendarEntry) { e.Start = start.Add(60*time.Second + 400*time.Millisecond) }, "Pay invoice", start, "Finance", false},
		{"unreadable start", func(e *model.CalendarEntry) { e.Start = time.Time{} }, "Pay invoice", start, "Finance", true},
		{"blank category keeps existing", nil, "Pay invoice", start, "", false},
		{"blank category whitespace", nil, "Pay invoice", start, "   ", false},
		{"category differs", nil, "Pay invoice", start, "Legal", true},
		{"category padded", func(e *model.CalendarEntry) { e.Categories = " Finance " }, "Pay invoice", start, "Finance", false},
		{"category added", func(e *model.CalendarEntry) { e.Categories = "" }, "Pay invoice", start, "Finance", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			if tt.mutate != nil {
				tt.mutate(&e)
			}
			assert.Equal(t, tt.want, IsChanged(e, tt.title, tt.start, tt.category))
		})
	}
}

func TestStartMovedTriggersUpdate(t *testing.T) {
	gw := gateway.NewMemory()
	eng := New(gw, 30)
	eng.Resolve(context.Background(), invoice())

	rec := invoice()
	rec.TimeText = "14:30"
	res := eng.Resolve(context.Background(), rec)
	assert.Equal(t, model.OutcomeUpdate, res.Outcome)
	assert.Equal(t, 14, gw.Entries()[0].Start.Hour())
	assert.Equal(t, 30, gw.Entries()[0].DurationMinutes)
}
