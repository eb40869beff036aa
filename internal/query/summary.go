package query

import (
	"github.com/mkusaka/test-tracker/internal/record"
)

// StatusSummary is the headline count of a table.
type StatusSummary struct {
	Total       int     `json:"total"`
	Pass        int     `json:"pass_count"`
	Fail        int     `json:"fail_count"`
	InProgress  int     `json:"in_progress_count"`
	NotStarted  int     `json:"not_started_count"`
	SuccessRate float64 `json:"success_rate"`
}

// Summarize counts records by conventional status. SuccessRate is the pass
// share of all records, 0 for an empty table.
func Summarize(t record.Table) StatusSummary {
	s := StatusSummary{Total: len(t)}
	for _, r := range t {
		switch r.Status {
		case record.StatusPass:
			s.Pass++
		case record.StatusFail:
			s.Fail++
		case record.StatusInProgress:
			s.InProgress++
		case record.StatusNotStarted:
			s.NotStarted++
		}
	}
	s.SuccessRate = Rate(s.Pass, s.Total)
	return s
}

// FailureBreakdown counts records by failure type, ignoring records without
// one.
func FailureBreakdown(t record.Table) []Count {
	var failed record.Table
	for _, r := range t {
		if r.FailureType != "" {
			failed = append(failed, r)
		}
	}
	return CountBy(failed, record.FieldFailureType)
}

// FailedRecords returns the records whose status is Fail.
func FailedRecords(t record.Table) record.Table {
	return Filter(t, Predicates{record.FieldStatus: record.StatusFail})
}

// FailuresByProject counts failed records per project.
func FailuresByProject(t record.Table) []Count {
	return CountBy(FailedRecords(t), record.FieldProject)
}

// TypeSummary reports pass and fail counts for one test type.
type TypeSummary struct {
	TestType    string  `json:"test_type"`
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// SummarizeType restricts t to testType and counts outcomes. SuccessRate is
// 0 when no record has that type.
func SummarizeType(t record.Table, testType string) TypeSummary {
	sub := Filter(t, Predicates{record.FieldTestType: testType})
	s := Summarize(sub)
	return TypeSummary{
		TestType:    testType,
		Total:       s.Total,
		Passed:      s.Pass,
		Failed:      s.Fail,
		SuccessRate: s.SuccessRate,
	}
}

// EnduranceSummary is SummarizeType for Endurance tests.
func EnduranceSummary(t record.Table) TypeSummary {
	return SummarizeType(t, record.TypeEndurance)
}

// TotalCycles sums recorded cycle counts; absent counts are skipped. The
// second result is how many records carried a count.
func TotalCycles(t record.Table) (total, recorded int) {
	for _, r := range t {
		if n, ok := r.CyclesCompleted.Value(); ok {
			total += n
			recorded++
		}
	}
	return total, recorded
}
