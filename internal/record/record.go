// Package record defines the mechanical test record, the table that holds
// them, and the row codec shared by every storage backend.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Field names a column of the record table. The value is the header text
// written to storage.
type Field string

const (
	FieldTestID             Field = "Test_ID"
	FieldDate               Field = "Date"
	FieldProject            Field = "Project"
	FieldTitle              Field = "Title"
	FieldTestType           Field = "Test_Type"
	FieldStatus             Field = "Status"
	FieldFailureType        Field = "Failure_Type"
	FieldFailureDescription Field = "Failure_Description"
	FieldObservations       Field = "Observations"
	FieldCyclesCompleted    Field = "Cycles_Completed"
)

// Fields lists every column in storage order.
var Fields = []Field{
	FieldTestID,
	FieldDate,
	FieldProject,
	FieldTitle,
	FieldTestType,
	FieldStatus,
	FieldFailureType,
	FieldFailureDescription,
	FieldObservations,
	FieldCyclesCompleted,
}

// Conventional status values. Storage does not enforce membership.
const (
	StatusNotStarted = "Not Started"
	StatusInProgress = "In Progress"
	StatusPass       = "Pass"
	StatusFail       = "Fail"
)

// TypeEndurance is the test type summarized by the endurance report.
const TypeEndurance = "Endurance"

// DateLayout is the ISO calendar date format used for the Date column.
const DateLayout = "2006-01-02"

// Record is one row of the test table.
type Record struct {
	TestID             string `json:"test_id"`
	Date               string `json:"date"`
	Project            string `json:"project"`
	Title              string `json:"title"`
	TestType           string `json:"test_type"`
	Status             string `json:"status"`
	FailureType        string `json:"failure_type"`
	FailureDescription string `json:"failure_description"`
	Observations       string `json:"observations"`
	CyclesCompleted    Cycles `json:"cycles_completed"`
}

// Value returns the string form of a field as it is stored.
func (r Record) Value(f Field) string {
	switch f {
	case FieldTestID:
		return r.TestID
	case FieldDate:
		return r.Date
	case FieldProject:
		return r.Project
	case FieldTitle:
		return r.Title
	case FieldTestType:
		return r.TestType
	case FieldStatus:
		return r.Status
	case FieldFailureType:
		return r.FailureType
	case FieldFailureDescription:
		return r.FailureDescription
	case FieldObservations:
		return r.Observations
	case FieldCyclesCompleted:
		return r.CyclesCompleted.String()
	}
	return ""
}

// Set assigns a field from its stored string form.
func (r *Record) Set(f Field, v string) error {
	switch f {
	case FieldTestID:
		r.TestID = v
	case FieldDate:
		r.Date = v
	case FieldProject:
		r.Project = v
	case FieldTitle:
		r.Title = v
	case FieldTestType:
		r.TestType = v
	case FieldStatus:
		r.Status = v
	case FieldFailureType:
		r.FailureType = v
	case FieldFailureDescription:
		r.FailureDescription = v
	case FieldObservations:
		r.Observations = v
	case FieldCyclesCompleted:
		c, err := ParseCycles(v)
		if err != nil {
			return err
		}
		r.CyclesCompleted = c
	default:
		return fmt.Errorf("unknown field %q", f)
	}
	return nil
}

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("invalid test record")

// Issue is a single reason a record was rejected.
type Issue struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports why a record cannot be appended.
type ValidationError struct {
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = fmt.Sprintf("%s %s", is.Field, is.Message)
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validate checks the required fields (Test_ID, Project, Title) and the
// format of the optional ones that carry structure.
func (r Record) Validate() error {
	var issues []Issue
	for _, f := range []Field{FieldTestID, FieldProject, FieldTitle} {
		if strings.TrimSpace(r.Value(f)) == "" {
			issues = append(issues, Issue{Field: f, Message: "is required"})
		}
	}
	if r.Date != "" {
		if _, err := time.Parse(DateLayout, r.Date); err != nil {
			issues = append(issues, Issue{Field: FieldDate, Message: "must be YYYY-MM-DD"})
		}
	}
	for _, f := range Fields {
		if utf8.RuneCountInString(r.Value(f)) > MaxTextLen {
			issues = append(issues, Issue{Field: f, Message: fmt.Sprintf("must be at most %d characters", MaxTextLen)})
		}
	}
	if n, ok := r.CyclesCompleted.Value(); ok && n < 0 {
		issues = append(issues, Issue{Field: FieldCyclesCompleted, Message: "must not be negative"})
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// MaxTextLen is the most characters a spreadsheet cell holds. Longer text
// would be cut short by the .xlsx backend.
const MaxTextLen = 32767

// Normalized returns r with CRLF line breaks in its text fields turned into
// LF. CSV storage reads CRLF inside a quoted cell back as LF, so a table
// only round-trips once its text is in this form.
func (r Record) Normalized() Record {
	for _, p := range []*string{
		&r.TestID, &r.Date, &r.Project, &r.Title, &r.TestType, &r.Status,
		&r.FailureType, &r.FailureDescription, &r.Observations,
	} {
		*p = strings.ReplaceAll(*p, "\r\n", "\n")
	}
	return r
}
