package store

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/mkusaka/test-tracker/internal/record"
)

// DefaultSheet is the sheet written by XLSXBackend.
const DefaultSheet = "Sheet1"

// XLSXBackend stores the table on the first sheet of a workbook: one header
// row followed by one row per record.
type XLSXBackend struct {
	path string
}

func NewXLSXBackend(path string) *XLSXBackend {
	return &XLSXBackend{path: path}
}

func (b *XLSXBackend) Path() string { return b.path }

func (b *XLSXBackend) Read() (record.Table, error) {
	f, err := excelize.OpenFile(b.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", b.path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return record.DecodeRows(rows)
}

func (b *XLSXBackend) Write(t record.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(record.Fields))
	for i, h := range record.Header() {
		header[i] = h
	}
	if err := f.SetSheetRow(DefaultSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range t {
		for _, field := range record.Fields {
			if utf8.RuneCountInString(r.Value(field)) > record.MaxTextLen {
				return fmt.Errorf("row %d: %s is longer than %d characters", i+2, field, record.MaxTextLen)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := xlsxRow(r)
		if err := f.SetSheetRow(DefaultSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	return writeFileAtomic(b.path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
}

func (b *XLSXBackend) Close() error { return nil }

// xlsxRow keeps cycle counts numeric so the sheet stays usable in a
// spreadsheet program; an absent count is an empty cell.
func xlsxRow(r record.Record) []any {
	row := make([]any, len(record.Fields))
	for i, f := range record.Fields {
		if f == record.FieldCyclesCompleted {
			if n, ok := r.CyclesCompleted.Value(); ok {
				row[i] = n
				continue
			}
			row[i] = nil
			continue
		}
		row[i] = r.Value(f)
	}
	return row
}
