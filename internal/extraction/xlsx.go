package extraction

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXStrategy reads the first worksheet of a spreadsheet into row maps
// keyed by the header row. Cells beyond the header width are dropped; short
// rows leave the trailing headers empty.
type XLSXStrategy struct{}

func (s *XLSXStrategy) Name() string { return "xlsx" }

func (s *XLSXStrategy) Extract(path, mimetype string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, extractionErr(s.Name(), path, errors.New("workbook has no sheets"))
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}
	if len(rows) == 0 {
		return &Result{Rows: []map[string]any{}}, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		headers[i] = h
	}

	out := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]any, len(headers))
		for i, h := range headers {
			if i < len(row) {
				record[h] = row[i]
			} else {
				record[h] = ""
			}
		}
		out = append(out, record)
	}
	return &Result{Rows: out}, nil
}
