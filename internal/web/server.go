// Package web is the HTTP presentation layer: dashboard, question page,
// entry form, reports and a small JSON API over the record store.
package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkusaka/test-tracker/internal/config"
	"github.com/mkusaka/test-tracker/internal/record"
	"github.com/mkusaka/test-tracker/internal/store"
)

// Deps holds all handler dependencies.
type Deps struct {
	Store     *store.Store
	Config    config.Config
	Templates *Templates
	Metrics   *Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// NewDeps fills in templates, metrics, logger and clock.
func NewDeps(s *store.Store, cfg config.Config, logger *zap.Logger) (*Deps, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deps{
		Store:     s,
		Config:    cfg,
		Templates: templates,
		Metrics:   NewMetrics(),
		Logger:    logger,
		Now:       time.Now,
	}, nil
}

// Routes wires every page and API endpoint.
func (d *Deps) Routes() http.Handler {
	mux := http.NewServeMux()

	// Pages
	mux.HandleFunc("GET /{$}", d.HandleDashboard)
	mux.HandleFunc("GET /ask", d.HandleAskPage)
	mux.HandleFunc("POST /ask", d.HandleAskSubmit)
	mux.HandleFunc("GET /records/new", d.HandleEntryForm)
	mux.HandleFunc("POST /records/new", d.HandleEntrySubmit)
	mux.HandleFunc("GET /reports", d.HandleReports)
	mux.HandleFunc("GET /reports/export.csv", d.HandleExportCSV)

	// JSON API
	mux.HandleFunc("GET /api/records", d.HandleListRecords)
	mux.HandleFunc("POST /api/records", d.HandleCreateRecord)
	mux.HandleFunc("GET /api/summary", d.HandleSummary)
	mux.HandleFunc("POST /api/ask", d.HandleAskAPI)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		jsonOK(w, map[string]any{"status": "ok"})
	})
	mux.Handle("GET /metrics", d.Metrics.Handler())

	return d.logRequests(mux)
}

// table returns the current table, reloading it once the cache TTL has
// passed, and the fallback notice to show, if any.
func (d *Deps) table() (record.Table, string) {
	t, reloaded, err := d.Store.ReloadIfStale(d.Now(), d.Config.CacheTTL)
	if reloaded && err != nil {
		d.Metrics.Fallbacks.Inc()
	}
	if notice := d.Store.Notice(); notice != nil {
		return t, notice.Error()
	}
	return t, ""
}

func (d *Deps) render(w http.ResponseWriter, name string, data any) {
	d.renderStatus(w, http.StatusOK, name, data)
}

// renderStatus executes into a buffer first so a template error never
// leaves a half-written page.
func (d *Deps) renderStatus(w http.ResponseWriter, code int, name string, data any) {
	var buf bytes.Buffer
	if err := d.Templates.ExecuteTemplate(&buf, name, data); err != nil {
		d.Logger.Error("render failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

func (d *Deps) refreshSeconds() int {
	return int(d.Config.RefreshInterval / time.Second)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (d *Deps) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		d.Metrics.Requests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		d.Logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}
