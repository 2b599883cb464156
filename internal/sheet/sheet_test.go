package sheet

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"calsync/internal/model"
)

func TestReadCSVItalianHeaders(t *testing.T) {
	in := " riferimento ,TITOLO,Data,Ora,Descrizione,Categoria\n" +
		"INV-001,Pay invoice,15/03/2025,,,Finance\n" +
		",No reference,16/03/2025,,,\n" +
		",,,,,\n" +
		"TAX-01,File taxes,2025-06-30,10:00,form F24,nan\n"

	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Dropped)
	require.Len(t, tbl.Records, 2)

	assert.Equal(t, model.ScheduleRecord{
		Reference: "INV-001", Title: "Pay invoice", DateText: "15/03/2025", Category: "Finance", Row: 2,
	}, tbl.Records[0])
	assert.Equal(t, "form F24", tbl.Records[1].Description)
	assert.Equal(t, "", tbl.Records[1].Category)
	assert.Equal(t, 5, tbl.Records[1].Row)
}

func TestReadCSVOptionalColumnsDefaultEmpty(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("Reference;Title;Date\nA1;Thing;01/01/2025\n"))
	require.NoError(t, err)
	require.Len(t, tbl.Records, 1)
	r := tbl.Records[0]
	assert.Equal(t, "A1", r.Reference)
	assert.Empty(t, r.TimeText)
	assert.Empty(t, r.Description)
	assert.Empty(t, r.Category)
}

func TestMissingColumns(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Reference,Description\nA,b\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumns))
	assert.Contains(t, err.Error(), "date, title")

	_, err = ReadCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrMissingColumns))
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadlines.xlsx")

	f := excelize.NewFile()
	_, err := f.NewSheet("Scadenze")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Scadenze", "A1", &[]any{"Riferimento", "Titolo", "Data", "Ora", "Categoria"}))
	require.NoError(t, f.SetSheetRow("Scadenze", "A2", &[]any{"INV-001", "Pay invoice", "15/03/2025", "", "Finance"}))
	// 45731 is 2025-03-15 as an Excel serial; 0.5 is noon.
	require.NoError(t, f.SetSheetRow("Scadenze", "A3", &[]any{"INV-002", "Serial date", 45731, 0.5, ""}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := ReadFile(path, "Scadenze")
	require.NoError(t, err)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, "15/03/2025", tbl.Records[0].DateText)
	assert.Equal(t, "2025-03-15", tbl.Records[1].DateText)
	assert.Equal(t, "12:00:00", tbl.Records[1].TimeText)

	_, err = ReadFile(path, "Missing")
	assert.Error(t, err)
}

func TestReadFileUnsupported(t *testing.T) {
	_, err := ReadFile("deadlines.ods", "")
	assert.Error(t, err)
}

func TestSerialConversions(t *testing.T) {
	assert.Equal(t, "2025-03-15", serialDate("45731"))
	assert.Equal(t, "15/03/2025", serialDate("15/03/2025"))
	assert.Equal(t, "09:00:00", serialTime("0.375"))
	assert.Equal(t, "18:00:00", serialTime("45731.75"))
	assert.Equal(t, "14", serialTime("14"))
	assert.Equal(t, "9:30", serialTime("9:30"))
}
