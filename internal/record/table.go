package record

import (
	"fmt"
	"strings"
)

// Table is the ordered collection of records, the unit of persistence.
// Insertion order is preserved and Test_ID uniqueness is not enforced.
type Table []Record

// Clone returns a copy that shares no backing array with t.
func (t Table) Clone() Table {
	if t == nil {
		return Table{}
	}
	out := make(Table, len(t))
	copy(out, t)
	return out
}

// Append normalizes and validates r and returns a new table with r at the
// end. On a validation error t is returned untouched.
func (t Table) Append(r Record) (Table, error) {
	r = r.Normalized()
	if err := r.Validate(); err != nil {
		return t, err
	}
	out := make(Table, len(t), len(t)+1)
	copy(out, t)
	return append(out, r), nil
}

// Sample is the fixed five-row table used to seed a missing store.
func Sample() Table {
	return Table{
		{TestID: "TST_001", Date: "2024-09-01", Project: "Apache", Title: "Center Stand Test", TestType: "Endurance", Status: StatusFail, FailureType: "Structural", FailureDescription: "Weld crack at joint", Observations: "Visible fatigue crack", CyclesCompleted: CyclesOf(50000)},
		{TestID: "TST_002", Date: "2024-09-01", Project: "MD1", Title: "Brake System", TestType: "Performance", Status: StatusPass, Observations: "All specs met"},
		{TestID: "TST_003", Date: "2024-09-02", Project: "N597", Title: "Side Stand", TestType: "Endurance", Status: StatusInProgress, Observations: "Test ongoing", CyclesCompleted: CyclesOf(25000)},
		{TestID: "TST_004", Date: "2024-09-02", Project: "Apache", Title: "Swingarm Test", TestType: "Strength", Status: StatusPass, Observations: "No issues"},
		{TestID: "TST_005", Date: "2024-09-03", Project: "MD1", Title: "Rear Brake", TestType: "Performance", Status: StatusFail, FailureType: "Hydraulic", FailureDescription: "Brake fluid leak", Observations: "Seal failure"},
	}
}

// Header returns the header row written by every backend.
func Header() []string {
	out := make([]string, len(Fields))
	for i, f := range Fields {
		out[i] = string(f)
	}
	return out
}

// Row renders r in column order.
func (r Record) Row() []string {
	out := make([]string, len(Fields))
	for i, f := range Fields {
		out[i] = r.Value(f)
	}
	return out
}

// Columns maps each field to its position in a header row read back from
// storage.
type Columns map[Field]int

// MapHeader matches a stored header row against Fields. Matching ignores
// case and treats spaces as underscores, so "test id" finds Test_ID. A
// leading byte order mark, as written by Excel's UTF-8 CSV export, is
// ignored. Every field must be present.
func MapHeader(header []string) (Columns, error) {
	cols := make(Columns, len(Fields))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		key := strings.ReplaceAll(strings.TrimSpace(h), " ", "_")
		for _, f := range Fields {
			if strings.EqualFold(key, string(f)) {
				if _, dup := cols[f]; !dup {
					cols[f] = i
				}
				break
			}
		}
	}
	var missing []string
	for _, f := range Fields {
		if _, ok := cols[f]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header is missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// Decode builds a record from a stored row. Rows shorter than the header
// are treated as having empty trailing cells.
func (c Columns) Decode(row []string) (Record, error) {
	var r Record
	for _, f := range Fields {
		idx := c[f]
		var v string
		if idx < len(row) {
			v = row[idx]
		}
		if err := r.Set(f, v); err != nil {
			return Record{}, err
		}
	}
	return r, nil
}

// DecodeRows turns a header and its data rows into a table. Fully blank
// rows are skipped.
func DecodeRows(rows [][]string) (Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no header row")
	}
	cols, err := MapHeader(rows[0])
	if err != nil {
		return nil, err
	}
	t := make(Table, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		r, err := cols.Decode(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		t = append(t, r)
	}
	return t, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
