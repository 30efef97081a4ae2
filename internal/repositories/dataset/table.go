package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

// ErrSourceMissing is returned when a dataset file does not exist.
var ErrSourceMissing = repositories.ErrSourceMissing

// tableRow maps a lower-cased header name to the cell value.
type tableRow map[string]string

// first returns the first non-empty value among the given column aliases.
func (r tableRow) first(aliases ...string) string {
	for _, a := range aliases {
		if v := strings.TrimSpace(r[a]); v != "" {
			return v
		}
	}
	return ""
}

func hasAny(header map[string]int, aliases ...string) bool {
	for _, a := range aliases {
		if _, ok := header[a]; ok {
			return true
		}
	}
	return false
}

// readTable reads a CSV or XLSX sheet. The header is the first row that names every
// required column group; rows before it (title lines) are skipped.
func readTable(path string, required ...[]string) ([]tableRow, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return nil, err
	}

	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(path)
	default:
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	headerAt := -1
	var header map[string]int
	for i, rec := range records {
		idx := make(map[string]int, len(rec))
		for j, h := range rec {
			idx[normalizeHeader(h)] = j
		}
		ok := true
		for _, group := range required {
			if !hasAny(idx, group...) {
				ok = false
				break
			}
		}
		if ok {
			headerAt, header = i, idx
			break
		}
	}
	if headerAt < 0 {
		return nil, fmt.Errorf("read %s: header with columns %v not found", path, required)
	}

	rows := make([]tableRow, 0, len(records)-headerAt-1)
	for _, rec := range records[headerAt+1:] {
		row := make(tableRow, len(header))
		empty := true
		for name, j := range header {
			if j < len(rec) {
				v := strings.TrimSpace(rec[j])
				row[name] = v
				if v != "" {
					empty = false
				}
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// readXLSX reads the first sheet of a workbook.
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}
