package core

// source.go reads tabular sources into a Sheet: row 1 is the header, the
// remaining rows are data.
//
// Workbooks keep native cell types (numbers, dates, strings). CSV files are
// all strings; they may come from Excel with a BOM, in UTF-16 or in
// Windows-1252, and with ';' as delimiter.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnreadableSource is returned when a file cannot be read as a table.
var ErrUnreadableSource = errors.New("unreadable source file")

// Builtin spreadsheet number formats that display dates.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true,
	20: true, 21: true, 22: true, 45: true, 46: true, 47: true,
}

// ReadSource reads a workbook or CSV file, chosen by file extension.
func ReadSource(fileName string, r io.Reader) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return ReadWorkbook(r)
	case ".csv", ".txt":
		return ReadCSV(r)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrUnreadableSource, filepath.Ext(fileName))
	}
}

// ReadWorkbook reads the first sheet of a workbook.
func ReadWorkbook(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrUnreadableSource, err)
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableSource)
	}

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrUnreadableSource, name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", ErrUnreadableSource, name)
	}

	wr := &workbookReader{f: f, sheet: name, dateStyles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		wr.date1904 = *props.Date1904
	}

	sheet := &Sheet{Name: name}
	sheet.Header = make([]string, len(rows[0]))
	for i, h := range rows[0] {
		sheet.Header[i] = CleanCell(h)
	}

	sheet.Rows = make([][]Cell, 0, len(rows)-1)
	for r, raw := range rows[1:] {
		rowNum := r + 2
		cells := make([]Cell, len(raw))
		for c, v := range raw {
			cells[c] = wr.cell(c+1, rowNum, v)
		}
		sheet.Rows = append(sheet.Rows, cells)
	}
	return sheet, nil
}

type workbookReader struct {
	f          *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool
}

// cell types a raw workbook value using the stored cell type and style.
func (wr *workbookReader) cell(col, row int, raw string) Cell {
	if strings.TrimSpace(raw) == "" {
		return Cell{}
	}
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return StringCell(raw)
	}
	typ, err := wr.f.GetCellType(wr.sheet, ref)
	if err != nil {
		return StringCell(raw)
	}

	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeFormula:
		num, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return StringCell(raw)
		}
		if wr.isDate(ref) {
			if t, err := excelize.ExcelDateToTime(num, wr.date1904); err == nil {
				return TimeCell(t)
			}
		}
		return NumberCell(num)

	case excelize.CellTypeDate:
		for _, layout := range isoTimestampLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return TimeCell(t)
			}
		}
		return StringCell(raw)

	default:
		return StringCell(raw)
	}
}

// isDate reports whether the cell's number format displays a date.
func (wr *workbookReader) isDate(ref string) bool {
	idx, err := wr.f.GetCellStyle(wr.sheet, ref)
	if err != nil || idx == 0 {
		return false
	}
	if v, ok := wr.dateStyles[idx]; ok {
		return v
	}

	isDate := false
	if style, err := wr.f.GetStyle(idx); err == nil && style != nil {
		switch {
		case builtinDateFormats[style.NumFmt]:
			isDate = true
		case style.CustomNumFmt != nil:
			isDate = looksLikeDateFormat(*style.CustomNumFmt)
		}
	}
	wr.dateStyles[idx] = isDate
	return isDate
}

// looksLikeDateFormat reports whether a custom number format has date parts
// outside quoted literals and bracketed sections.
func looksLikeDateFormat(format string) bool {
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(format) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == 'y' || r == 'd':
			return true
		}
	}
	return false
}

// ReadCSV reads a delimited text file. Every cell is a string.
func ReadCSV(r io.Reader) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %v", ErrUnreadableSource, err)
	}

	data, err = decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode csv: %v", ErrUnreadableSource, err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = detectDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse csv: %v", ErrUnreadableSource, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrUnreadableSource)
	}

	sheet := &Sheet{}
	sheet.Header = make([]string, len(records[0]))
	for i, h := range records[0] {
		sheet.Header[i] = CleanCell(h)
	}
	sheet.Rows = make([][]Cell, 0, len(records)-1)
	for _, rec := range records[1:] {
		cells := make([]Cell, len(rec))
		for i, v := range rec {
			cells[i] = StringCell(v)
		}
		sheet.Rows = append(sheet.Rows, cells)
	}
	return sheet, nil
}

// decodeText returns data as UTF-8 without a byte order mark. A UTF-8 or
// UTF-16 BOM selects the encoding; without one, invalid UTF-8 is taken to be
// Windows-1252.
func decodeText(data []byte) ([]byte, error) {
	var fallback transform.Transformer = xunicode.UTF8.NewDecoder()
	if !utf8.Valid(data) {
		fallback = charmap.Windows1252.NewDecoder()
	}
	out, _, err := transform.Bytes(xunicode.BOMOverride(fallback), data)
	return out, err
}

// detectDelimiter picks ';' or tab over ',' when the first line has more of them.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
