package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRejectsMissingRequiredFields(t *testing.T) {
	table := Sample()

	out, err := table.Append(Record{TestID: "", Project: "Apache", Title: "X"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Len(t, out, 5)
	assert.Len(t, table, 5)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Issues, 1)
	assert.Equal(t, FieldTestID, verr.Issues[0].Field)
}

func TestAppendReportsEveryMissingField(t *testing.T) {
	_, err := Table{}.Append(Record{TestID: "  ", Status: StatusPass})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	var fields []Field
	for _, is := range verr.Issues {
		fields = append(fields, is.Field)
	}
	assert.Equal(t, []Field{FieldTestID, FieldProject, FieldTitle}, fields)
	assert.Contains(t, err.Error(), "Title is required")
}

func TestAppendPreservesOrderAndDoesNotAlias(t *testing.T) {
	base := Sample()[:2]
	out, err := base.Append(Record{TestID: "TST_006", Project: "N597", Title: "Kick Stand"})
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, "TST_001", out[0].TestID)
	assert.Equal(t, "TST_002", out[1].TestID)
	assert.Equal(t, "TST_006", out[2].TestID)

	out[0].Title = "changed"
	assert.Equal(t, "Center Stand Test", base[0].Title)
}

func TestValidateStructuredOptionalFields(t *testing.T) {
	r := Record{TestID: "T", Project: "P", Title: "T", Date: "09/01/2024", CyclesCompleted: CyclesOf(-5)}
	err := r.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Issues, 2)
	assert.Equal(t, FieldDate, verr.Issues[0].Field)
	assert.Equal(t, FieldCyclesCompleted, verr.Issues[1].Field)

	r.Date = "2024-09-01"
	r.CyclesCompleted = CyclesOf(0)
	assert.NoError(t, r.Validate())
}

func TestCyclesKeepsThreeStates(t *testing.T) {
	cases := []struct {
		in      string
		want    Cycles
		wantStr string
	}{
		{"", NoCycles(), ""},
		{"  ", NoCycles(), ""},
		{"0", CyclesOf(0), "0"},
		{"50000", CyclesOf(50000), "50000"},
		{"25000.0", CyclesOf(25000), "25000"},
	}
	for _, tc := range cases {
		got, err := ParseCycles(tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, tc.want.Equal(got), "ParseCycles(%q) = %+v", tc.in, got)
		assert.Equal(t, tc.wantStr, got.String())
	}

	_, err := ParseCycles("12.5")
	assert.Error(t, err)
	_, err = ParseCycles("lots")
	assert.Error(t, err)

	assert.False(t, NoCycles().IsSet())
	assert.True(t, CyclesOf(0).IsSet())
	assert.False(t, NoCycles().Equal(CyclesOf(0)))
}

func TestCyclesJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Cycles `json:"a"`
		B Cycles `json:"b"`
		C Cycles `json:"c"`
	}{NoCycles(), CyclesOf(0), CyclesOf(7)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null,"b":0,"c":7}`, string(b))

	var got struct {
		A, B, C, D Cycles
	}
	require.NoError(t, json.Unmarshal([]byte(`{"A":null,"B":0,"C":"1200","D":""}`), &got))
	assert.False(t, got.A.IsSet())
	assert.True(t, got.B.Equal(CyclesOf(0)))
	assert.True(t, got.C.Equal(CyclesOf(1200)))
	assert.False(t, got.D.IsSet())
}

func TestMapHeaderIgnoresCaseAndOrder(t *testing.T) {
	header := []string{"cycles_completed", "Observations", "failure description", "FAILURE_TYPE", "status", "Test_Type", "title", "project", "date", "test_id"}
	cols, err := MapHeader(header)
	require.NoError(t, err)
	assert.Equal(t, 9, cols[FieldTestID])
	assert.Equal(t, 0, cols[FieldCyclesCompleted])

	r, err := cols.Decode([]string{"10", "ok", "", "", "Pass", "Strength", "Frame", "MD1", "2024-10-01", "TST_9"})
	require.NoError(t, err)
	assert.Equal(t, "TST_9", r.TestID)
	assert.True(t, r.CyclesCompleted.Equal(CyclesOf(10)))
}

func TestMapHeaderMissingColumns(t *testing.T) {
	_, err := MapHeader([]string{"Test_ID", "Date", "Project"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Title")
	assert.Contains(t, err.Error(), "Cycles_Completed")
}

func TestDecodeRowsPadsShortRowsAndSkipsBlankOnes(t *testing.T) {
	rows := [][]string{
		Header(),
		{"TST_1", "2024-01-01", "Apache", "Short row"},
		{"", "", ""},
	}
	table, err := DecodeRows(rows)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, "Short row", table[0].Title)
	assert.False(t, table[0].CyclesCompleted.IsSet())
}

func TestCSVRoundTrip(t *testing.T) {
	table := Sample()
	table = append(table, Record{TestID: "TST_006", Project: "Other", Title: "Zero, \"quoted\" run", CyclesCompleted: CyclesOf(0)})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))
	assert.True(t, strings.HasPrefix(buf.String(), strings.Join(Header(), ",")+"\n"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(table, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReportFilename(t *testing.T) {
	now := time.Date(2024, 9, 3, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "test_report_20240903.csv", ReportFilename(now))
}

func TestAppendNormalizesLineEndings(t *testing.T) {
	next, err := Table{}.Append(Record{
		TestID: "TST_006", Project: "MD1", Title: "Fork",
		FailureDescription: "seal\r\nleak", Observations: "line one\r\nline two\r\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "seal\nleak", next[0].FailureDescription)
	assert.Equal(t, "line one\nline two\n", next[0].Observations)
}

func TestValidateRejectsTextLongerThanACell(t *testing.T) {
	r := Record{TestID: "TST_006", Project: "MD1", Title: "Fork", Observations: strings.Repeat("x", MaxTextLen)}
	require.NoError(t, r.Validate())

	r.Observations += "x"
	err := r.Validate()
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []Issue{{Field: FieldObservations, Message: "must be at most 32767 characters"}}, verr.Issues)

	_, err = Table{}.Append(r)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReadCSVWithByteOrderMark(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	require.NoError(t, WriteCSV(&buf, Sample()[:1]))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TST_001", got[0].TestID)
}
