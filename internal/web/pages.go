package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/mkusaka/test-tracker/internal/query"
	"github.com/mkusaka/test-tracker/internal/record"
	"github.com/mkusaka/test-tracker/internal/responder"
)

// Page is the layout data shared by every page.
type Page struct {
	Title   string
	Active  string
	Notice  string
	Flash   string
	Refresh int
}

// Filter is the dashboard's selected filter values.
type Filter struct {
	Status   string
	Project  string
	TestType string
}

func (f Filter) predicates() query.Predicates {
	return query.Predicates{
		record.FieldStatus:   f.Status,
		record.FieldProject:  f.Project,
		record.FieldTestType: f.TestType,
	}
}

// DashboardData is the template data for the dashboard.
type DashboardData struct {
	Page
	Summary        query.StatusSummary
	StatusCounts   []query.Count
	ProjectCounts  []query.Count
	MaxStatus      int
	MaxProject     int
	Filter         Filter
	StatusOptions  []string
	ProjectOptions []string
	TypeOptions    []string
	Records        record.Table
}

// HandleDashboard renders metrics, distributions and the filtered table.
func (d *Deps) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	t, notice := d.table()
	q := r.URL.Query()
	filter := Filter{
		Status:   orAll(q.Get("status")),
		Project:  orAll(q.Get("project")),
		TestType: orAll(q.Get("test_type")),
	}

	data := DashboardData{
		Page:           Page{Title: "Dashboard", Active: "dashboard", Notice: notice, Refresh: d.refreshSeconds()},
		Summary:        query.Summarize(t),
		StatusCounts:   query.CountBy(t, record.FieldStatus),
		ProjectCounts:  query.CountBy(t, record.FieldProject),
		Filter:         filter,
		StatusOptions:  query.Distinct(t, record.FieldStatus),
		ProjectOptions: query.Distinct(t, record.FieldProject),
		TypeOptions:    query.Distinct(t, record.FieldTestType),
		Records:        query.Filter(t, filter.predicates()),
	}
	data.MaxStatus = maxCount(data.StatusCounts)
	data.MaxProject = maxCount(data.ProjectCounts)
	if added := q.Get("added"); added != "" {
		data.Flash = fmt.Sprintf("Test record %s added successfully!", added)
	}
	d.render(w, "dashboard.html", data)
}

// AskData is the template data for the question page.
type AskData struct {
	Page
	SampleQuestions []string
	Question        string
	Warning         string
	Answer          *responder.Answer
}

// HandleAskPage renders the empty question form.
func (d *Deps) HandleAskPage(w http.ResponseWriter, r *http.Request) {
	_, notice := d.table()
	d.render(w, "ask.html", AskData{
		Page:            Page{Title: "AI Analysis", Active: "ask", Notice: notice},
		SampleQuestions: responder.SampleQuestions,
	})
}

// HandleAskSubmit answers the posted question.
func (d *Deps) HandleAskSubmit(w http.ResponseWriter, r *http.Request) {
	t, notice := d.table()
	data := AskData{
		Page:            Page{Title: "AI Analysis", Active: "ask", Notice: notice},
		SampleQuestions: responder.SampleQuestions,
		Question:        r.FormValue("question"),
	}
	if strings.TrimSpace(data.Question) == "" {
		data.Warning = "Please enter a question to analyze."
		d.render(w, "ask.html", data)
		return
	}
	answer := d.answer(t, data.Question)
	data.Answer = &answer
	d.render(w, "ask.html", data)
}

func (d *Deps) answer(t record.Table, question string) responder.Answer {
	answer := responder.Respond(t, question)
	d.Metrics.Questions.WithLabelValues(answer.Kind).Inc()
	d.Logger.Debug("question answered", zap.String("intent", answer.Kind))
	return answer
}

// EntryData is the template data for the entry form.
type EntryData struct {
	Page
	Projects  []string
	TestTypes []string
	Statuses  []string
	Form      record.Record
	Cycles    string
	Errors    []record.Issue
}

func (d *Deps) entryData(notice string) EntryData {
	return EntryData{
		Page:      Page{Title: "Data Entry", Active: "entry", Notice: notice},
		Projects:  d.Config.Projects,
		TestTypes: d.Config.TestTypes,
		Statuses:  d.Config.Statuses,
	}
}

// HandleEntryForm renders a blank entry form dated today.
func (d *Deps) HandleEntryForm(w http.ResponseWriter, r *http.Request) {
	_, notice := d.table()
	data := d.entryData(notice)
	data.Form.Date = d.Now().Format(record.DateLayout)
	d.render(w, "entry.html", data)
}

// HandleEntrySubmit appends the submitted record and redirects to the
// dashboard, or re-renders the form with the validation errors.
func (d *Deps) HandleEntrySubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	rec, cyclesText, err := recordFromForm(r)
	if err == nil {
		_, err = d.Store.Append(rec)
	}

	var verr *record.ValidationError
	switch {
	case err == nil:
		d.Metrics.Appends.Inc()
		d.Logger.Info("record added", zap.String("test_id", rec.TestID))
		http.Redirect(w, r, "/?added="+url.QueryEscape(rec.TestID), http.StatusSeeOther)
	case errors.As(err, &verr):
		d.Metrics.ValidationFailures.Inc()
		data := d.entryData(noticeText(d.Store.Notice()))
		data.Form = rec
		data.Cycles = cyclesText
		data.Errors = verr.Issues
		d.renderStatus(w, http.StatusUnprocessableEntity, "entry.html", data)
	default:
		d.Logger.Error("append failed", zap.Error(err))
		http.Error(w, "Failed to save record", http.StatusInternalServerError)
	}
}

// recordFromForm reads the entry form. An empty cycles field means no count
// was recorded; "0" is kept as an explicit zero.
func recordFromForm(r *http.Request) (record.Record, string, error) {
	rec := record.Record{
		TestID:             strings.TrimSpace(r.FormValue("test_id")),
		Date:               strings.TrimSpace(r.FormValue("date")),
		Project:            strings.TrimSpace(r.FormValue("project")),
		Title:              strings.TrimSpace(r.FormValue("title")),
		TestType:           r.FormValue("test_type"),
		Status:             r.FormValue("status"),
		FailureType:        strings.TrimSpace(r.FormValue("failure_type")),
		FailureDescription: strings.TrimSpace(r.FormValue("failure_description")),
		Observations:       strings.TrimSpace(r.FormValue("observations")),
	}
	rec = rec.Normalized()
	cyclesText := strings.TrimSpace(r.FormValue("cycles"))
	cycles, err := record.ParseCycles(cyclesText)
	if err != nil {
		issues := []record.Issue{{Field: record.FieldCyclesCompleted, Message: "must be a whole number"}}
		var verr *record.ValidationError
		if errors.As(rec.Validate(), &verr) {
			issues = append(verr.Issues, issues...)
		}
		return rec, cyclesText, &record.ValidationError{Issues: issues}
	}
	rec.CyclesCompleted = cycles
	return rec, cyclesText, nil
}

// ReportsData is the template data for the reports page.
type ReportsData struct {
	Page
	Summary           query.StatusSummary
	FailuresByProject []query.Count
	MaxFailures       int
	Failed            record.Table
	TotalCycles       int
	CyclesRecorded    int
	ExportName        string
}

// HandleReports renders the summary and failure analysis.
func (d *Deps) HandleReports(w http.ResponseWriter, r *http.Request) {
	t, notice := d.table()
	data := ReportsData{
		Page:              Page{Title: "Reports", Active: "reports", Notice: notice, Refresh: d.refreshSeconds()},
		Summary:           query.Summarize(t),
		FailuresByProject: query.FailuresByProject(t),
		Failed:            query.FailedRecords(t),
		ExportName:        record.ReportFilename(d.Now()),
	}
	data.MaxFailures = maxCount(data.FailuresByProject)
	data.TotalCycles, data.CyclesRecorded = query.TotalCycles(t)
	d.render(w, "reports.html", data)
}

// HandleExportCSV downloads the full table as CSV.
func (d *Deps) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	t, _ := d.table()
	var buf bytes.Buffer
	if err := record.WriteCSV(&buf, t); err != nil {
		d.Logger.Error("csv export failed", zap.Error(err))
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, record.ReportFilename(d.Now())))
	w.Write(buf.Bytes())
}

func orAll(v string) string {
	if v == "" {
		return query.All
	}
	return v
}

func maxCount(counts []query.Count) int {
	m := 0
	for _, c := range counts {
		if c.Count > m {
			m = c.Count
		}
	}
	return m
}

func noticeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
