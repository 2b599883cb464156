// Package sheet reads deadline rows from an .xlsx or .csv file and turns
// them into model.ScheduleRecord values. Column discovery, required-column
// checks and blank-row filtering all happen here so the sync core never
// looks at raw cells.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"calsync/internal/model"
)

// Canonical column keys.
const (
	ColReference   = "reference"
	ColTitle       = "title"
	ColDate        = "date"
	ColTime        = "time"
	ColDescription = "description"
	ColCategory    = "category"
)

// headerAliases maps title-cased header text to a canonical column key.
var headerAliases = map[string]string{
	"Riferimento": ColReference,
	"Reference":   ColReference,
	"Ref":         ColReference,
	"Titolo":      ColTitle,
	"Title":       ColTitle,
	"Data":        ColDate,
	"Date":        ColDate,
	"Ora":         ColTime,
	"Time":        ColTime,
	"Descrizione": ColDescription,
	"Description": ColDescription,
	"Categoria":   ColCategory,
	"Category":    ColCategory,
}

var requiredColumns = []string{ColReference, ColTitle, ColDate}

// ErrMissingColumns is wrapped by the error returned when the header row
// lacks a required column.
var ErrMissingColumns = errors.New("missing required columns")

// Table is the normalized result of reading a sheet.
type Table struct {
	Records []model.ScheduleRecord
	// Dropped counts data rows without a reference or title.
	Dropped int
}

// ReadFile reads path, choosing the format by extension. sheetName applies
// to .xlsx only; empty selects the first worksheet.
func ReadFile(path, sheetName string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx", ".xlsm":
		return readXLSX(path, sheetName)
	default:
		return nil, fmt.Errorf("unsupported sheet format %q", filepath.Ext(path))
	}
}

// ReadCSV reads comma- or semicolon-separated rows with a header line.
func ReadCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(strings.NewReader(string(data)))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if sniffSemicolon(string(data)) {
		cr.Comma = ';'
	}
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return normalize(rows, false)
}

func readXLSX(path, sheetName string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheetName); err != nil || idx < 0 {
		return nil, fmt.Errorf("worksheet %q not found (have %v)", sheetName, f.GetSheetList())
	}

	// Raw values keep dates as serial numbers instead of locale formatted
	// text; normalize converts them.
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", sheetName, err)
	}
	return normalize(rows, true)
}

// normalize maps the header row to canonical columns and converts each data
// row. raw enables Excel serial date/time conversion.
func normalize(rows [][]string, raw bool) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet is empty", ErrMissingColumns)
	}

	index := headerIndex(rows[0])
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return cleanCell(row[i])
	}

	t := &Table{}
	for n, row := range rows[1:] {
		rec := model.ScheduleRecord{
			Reference:   cell(row, ColReference),
			Title:       cell(row, ColTitle),
			DateText:    cell(row, ColDate),
			TimeText:    cell(row, ColTime),
			Description: cell(row, ColDescription),
			Category:    cell(row, ColCategory),
			Row:         n + 2,
		}
		if rec.Reference == "" || rec.Title == "" {
			if !blankRow(row) {
				t.Dropped++
			}
			continue
		}
		if raw {
			rec.DateText = serialDate(rec.DateText)
			rec.TimeText = serialTime(rec.TimeText)
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// headerIndex title-cases each header and resolves aliases. The first
// occurrence of a column wins.
func headerIndex(header []string) map[string]int {
	caser := cases.Title(language.Und)
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := caser.String(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		col, ok := headerAliases[name]
		if !ok {
			continue
		}
		if _, seen := index[col]; !seen {
			index[col] = i
		}
	}
	return index
}

// cleanCell trims the cell and blanks the placeholders spreadsheet exports
// use for empty cells.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "nan", "none", "null":
		return ""
	}
	return s
}

func blankRow(row []string) bool {
	for _, c := range row {
		if cleanCell(c) != "" {
			return false
		}
	}
	return true
}

// serialDate renders an Excel serial day number as ISO date text. Anything
// that is not a plain number is returned unchanged.
func serialDate(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 {
		return s
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

// serialTime renders an Excel day fraction as HH:MM:SS. A full serial
// date-time keeps only its fractional part.
func serialTime(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || (f >= 1 && !strings.Contains(s, ".")) {
		return s
	}
	frac := f - float64(int64(f))
	secs := int64(frac*86400 + 0.5)
	if secs >= 86400 {
		secs = 86399
	}
	d := time.Duration(secs) * time.Second
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func sniffSemicolon(data string) bool {
	line, _, _ := strings.Cut(data, "\n")
	return strings.Count(line, ";") > strings.Count(line, ",")
}
