package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptyFile      = errors.New("importer: file is empty")
	ErrMissingColumns = errors.New("importer: missing required columns")
	ErrNoValidRows    = errors.New("importer: no valid leads found")
	ErrUnsupported    = errors.New("importer: unsupported file type")
)

// Record is one data row keyed by normalized header.
type Record map[string]string

// Table is a header row followed by data rows, as read from any tabular source.
type Table [][]string

// ParseUpload reads an uploaded lead file. .xlsx goes through excelize;
// .csv, .txt and extensionless names are read as CSV.
func ParseUpload(filename string, r io.Reader) (Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(r)
	case ".csv", ".txt", "":
		return ReadCSV(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(filename))
	}
}

func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var out Table
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("importer: parse csv: %w", err)
		}
		if blank(row) {
			continue
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, ErrEmptyFile
	}
	return out, nil
}

// ReadXLSX reads the first worksheet of a workbook.
func ReadXLSX(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("importer: open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("importer: read xlsx rows: %w", err)
	}
	var out Table
	for _, row := range rows {
		if blank(row) {
			continue
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, ErrEmptyFile
	}
	return out, nil
}

// Records maps data rows onto header keys produced by norm. Short rows read
// missing cells as "". When several headers normalize to the same key (phone
// and mobile, say) the first non-empty cell wins.
func (t Table) Records(norm func(string) string) []Record {
	if len(t) == 0 {
		return nil
	}
	headers := make([]string, len(t[0]))
	for i, h := range t[0] {
		headers[i] = norm(h)
	}
	out := make([]Record, 0, len(t)-1)
	for _, row := range t[1:] {
		rec := make(Record, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if cur, ok := rec[h]; !ok || (cur == "" && v != "") {
				rec[h] = v
			}
		}
		out = append(out, rec)
	}
	return out
}

// Headers returns the normalized header row.
func (t Table) Headers(norm func(string) string) []string {
	if len(t) == 0 {
		return nil
	}
	out := make([]string, len(t[0]))
	for i, h := range t[0] {
		out[i] = norm(h)
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
