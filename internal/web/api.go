package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkusaka/test-tracker/internal/query"
	"github.com/mkusaka/test-tracker/internal/record"
)

// HandleListRecords returns the table, filtered by the status, project and
// test_type query parameters.
func (d *Deps) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	t, notice := d.table()
	q := r.URL.Query()
	records := query.Filter(t, query.Predicates{
		record.FieldStatus:   q.Get("status"),
		record.FieldProject:  q.Get("project"),
		record.FieldTestType: q.Get("test_type"),
	})
	resp := map[string]any{"records": records, "count": len(records)}
	if notice != "" {
		resp["notice"] = notice
	}
	jsonOK(w, resp)
}

// HandleCreateRecord appends a record posted as JSON.
func (d *Deps) HandleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var rec record.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := d.Store.Append(rec)
	var verr *record.ValidationError
	switch {
	case err == nil:
		d.Metrics.Appends.Inc()
		d.Logger.Info("record added", zap.String("test_id", rec.TestID))
		jsonStatus(w, http.StatusCreated, map[string]any{"record": t[len(t)-1], "count": len(t)})
	case errors.As(err, &verr):
		d.Metrics.ValidationFailures.Inc()
		jsonStatus(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "issues": verr.Issues})
	default:
		d.Logger.Error("append failed", zap.Error(err))
		jsonError(w, "Failed to save record", http.StatusInternalServerError)
	}
}

// SummaryResponse bundles every aggregation shown on the dashboard and
// reports page.
type SummaryResponse struct {
	Status            query.StatusSummary `json:"status"`
	ByStatus          []query.Count       `json:"by_status"`
	ByProject         []query.Count       `json:"by_project"`
	ByTestType        []query.Count       `json:"by_test_type"`
	FailuresByProject []query.Count       `json:"failures_by_project"`
	FailureTypes      []query.Count       `json:"failure_types"`
	Endurance         query.TypeSummary   `json:"endurance"`
	Notice            string              `json:"notice,omitempty"`
}

// HandleSummary returns the aggregations for the current table.
func (d *Deps) HandleSummary(w http.ResponseWriter, r *http.Request) {
	t, notice := d.table()
	jsonOK(w, SummaryResponse{
		Status:            query.Summarize(t),
		ByStatus:          query.CountBy(t, record.FieldStatus),
		ByProject:         query.CountBy(t, record.FieldProject),
		ByTestType:        query.CountBy(t, record.FieldTestType),
		FailuresByProject: query.FailuresByProject(t),
		FailureTypes:      query.FailureBreakdown(t),
		Endurance:         query.EnduranceSummary(t),
		Notice:            notice,
	})
}

type askRequest struct {
	Question string `json:"question"`
}

// HandleAskAPI answers {"question": "..."}.
func (d *Deps) HandleAskAPI(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	t, _ := d.table()
	jsonOK(w, d.answer(t, req.Question))
}
