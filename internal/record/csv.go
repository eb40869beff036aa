package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// WriteCSV writes the header and every record as comma-separated text.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range t {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses text written by WriteCSV or by a spreadsheet export with
// the same columns.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return DecodeRows(rows)
}

// ReportFilename is the download name for a CSV export taken at now.
func ReportFilename(now time.Time) string {
	return fmt.Sprintf("test_report_%s.csv", now.Format("20060102"))
}
