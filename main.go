package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/mkusaka/test-tracker/internal/config"
	"github.com/mkusaka/test-tracker/internal/query"
	"github.com/mkusaka/test-tracker/internal/record"
	"github.com/mkusaka/test-tracker/internal/responder"
	"github.com/mkusaka/test-tracker/internal/store"
	"github.com/mkusaka/test-tracker/internal/web"
)

// app carries what Before resolves for every command.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
}

func (a *app) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("data") {
		cfg.DataPath = c.String("data")
	}
	a.cfg = cfg

	zcfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = level
	if c.Bool("verbose") {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if c.Bool("silent") {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	}
	a.logger, err = zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func (a *app) teardown(c *cli.Context) error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}

// openStore opens the data file and loads it. A fallback to the sample
// table is reported on stderr and is not an error.
func (a *app) openStore(c *cli.Context) (*store.Store, record.Table, error) {
	s, err := store.Open(a.cfg.DataPath, store.WithLogger(a.logger), store.WithClock(a.now))
	if err != nil {
		return nil, nil, err
	}
	t, err := s.Load()
	var fallback *store.FallbackError
	switch {
	case err == nil:
	case errors.As(err, &fallback):
		if !c.Bool("silent") {
			fmt.Fprintf(c.App.ErrWriter, "⚠️  %v\n", fallback)
		}
	default:
		s.Close()
		return nil, nil, err
	}
	return s, t, nil
}

func (a *app) serve(c *cli.Context) error {
	s, _, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := a.cfg
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	deps, err := web.NewDeps(s, cfg, a.logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           deps.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, os.Kill)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("data", cfg.DataPath))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *app) list(c *cli.Context) error {
	format := c.String("format")
	switch format {
	case "table", "ndjson", "csv":
	default:
		return fmt.Errorf("invalid format %q: must be table, ndjson, or csv", format)
	}

	s, t, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	rows := query.Filter(t, query.Predicates{
		record.FieldStatus:   c.String("status"),
		record.FieldProject:  c.String("project"),
		record.FieldTestType: c.String("type"),
	})
	return writeRecords(c.App.Writer, format, rows)
}

func writeRecords(w io.Writer, format string, rows record.Table) error {
	switch format {
	case "ndjson":
		enc := json.NewEncoder(w)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case "csv":
		return record.WriteCSV(w, rows)
	}

	header := record.Header()
	dashes := make([]string, len(header))
	for i, h := range header {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	fmt.Fprintln(w, strings.Join(dashes, "\t"))
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r.Row(), "\t"))
	}
	return nil
}

func (a *app) add(c *cli.Context) error {
	cycles, err := record.ParseCycles(c.String("cycles"))
	if err != nil {
		return err
	}
	rec := record.Record{
		TestID:             c.String("id"),
		Date:               c.String("date"),
		Project:            c.String("project"),
		Title:              c.String("title"),
		TestType:           c.String("type"),
		Status:             c.String("status"),
		FailureType:        c.String("failure-type"),
		FailureDescription: c.String("failure-description"),
		Observations:       c.String("observations"),
		CyclesCompleted:    cycles,
	}
	if !c.IsSet("date") {
		rec.Date = a.now().Format(record.DateLayout)
	}

	s, _, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.Append(rec)
	if err != nil {
		return err
	}
	a.logger.Debug("record added", zap.String("test_id", rec.TestID), zap.Int("rows", len(t)))
	if !c.Bool("silent") {
		fmt.Fprintf(c.App.Writer, "✅ Test record %s added successfully!\n", rec.TestID)
	}
	return nil
}

func (a *app) summary(c *cli.Context) error {
	s, t, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	r := lipgloss.NewRenderer(c.App.Writer)
	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#1f77b4"))
	label := r.NewStyle().Width(16)

	sum := query.Summarize(t)
	total, recorded := query.TotalCycles(t)
	w := c.App.Writer
	fmt.Fprintln(w, title.Render("Summary Report"))
	fmt.Fprintln(w, label.Render("Total Tests:")+fmt.Sprint(sum.Total))
	fmt.Fprintln(w, label.Render("Passed:")+fmt.Sprint(sum.Pass))
	fmt.Fprintln(w, label.Render("Failed:")+fmt.Sprint(sum.Fail))
	fmt.Fprintln(w, label.Render("In Progress:")+fmt.Sprint(sum.InProgress))
	fmt.Fprintln(w, label.Render("Not Started:")+fmt.Sprint(sum.NotStarted))
	fmt.Fprintln(w, label.Render("Success Rate:")+fmt.Sprintf("%.1f%%", sum.SuccessRate))
	fmt.Fprintln(w, label.Render("Cycles:")+fmt.Sprintf("%d across %d tests", total, recorded))

	section := func(name string, counts []query.Count) {
		if len(counts) == 0 {
			return
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, title.Render(name))
		for _, cnt := range counts {
			fmt.Fprintln(w, label.Render(cnt.Category)+fmt.Sprint(cnt.Count))
		}
	}
	section("Failures by Project", query.FailuresByProject(t))
	section("Failure Types", query.FailureBreakdown(t))

	end := query.EnduranceSummary(t)
	fmt.Fprintln(w)
	fmt.Fprintln(w, title.Render("Endurance Tests"))
	fmt.Fprintln(w, label.Render("Total:")+fmt.Sprint(end.Total))
	fmt.Fprintln(w, label.Render("Passed:")+fmt.Sprint(end.Passed))
	fmt.Fprintln(w, label.Render("Failed:")+fmt.Sprint(end.Failed))
	fmt.Fprintln(w, label.Render("Success Rate:")+fmt.Sprintf("%.1f%%", end.SuccessRate))
	return nil
}

func (a *app) ask(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("please enter a question to analyze")
	}
	s, t, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	answer := responder.Respond(t, question)
	a.logger.Debug("question answered", zap.String("intent", answer.Kind))
	fmt.Fprintln(c.App.Writer, answer.Text)
	return nil
}

func (a *app) export(c *cli.Context) error {
	s, t, err := a.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	output := c.String("output")
	if output == "" {
		output = record.ReportFilename(a.now())
	}
	if output == "-" {
		return record.WriteCSV(c.App.Writer, t)
	}

	b, err := store.OpenBackend(output)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.Write(t); err != nil {
		return fmt.Errorf("export %s: %w", output, err)
	}
	if !c.Bool("silent") {
		fmt.Fprintf(c.App.Writer, "Exported %d records to %s\n", len(t), output)
	}
	return nil
}

func newApp() *cli.App {
	a := &app{now: time.Now}
	return &cli.App{
		Name:  "test-tracker",
		Usage: "Track mechanical test records in a spreadsheet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Data file (.xlsx, .csv or .db)",
				EnvVars: []string{"TRACKER_DATA_PATH"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"TRACKER_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "silent",
				Usage: "Suppress all output except errors",
			},
		},
		Before: a.setup,
		After:  a.teardown,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the web dashboard",
				Action: a.serve,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address", EnvVars: []string{"TRACKER_ADDR"}},
				},
			},
			{
				Name:   "list",
				Usage:  "List test records",
				Action: a.list,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Value: query.All, Usage: "Filter by status"},
					&cli.StringFlag{Name: "project", Value: query.All, Usage: "Filter by project"},
					&cli.StringFlag{Name: "type", Value: query.All, Usage: "Filter by test type"},
					&cli.StringFlag{Name: "format", Value: "table", Usage: "Output format (table, ndjson, csv)"},
				},
			},
			{
				Name:   "add",
				Usage:  "Append a test record",
				Action: a.add,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Test ID", Required: true},
					&cli.StringFlag{Name: "date", Usage: "Test date (YYYY-MM-DD), defaults to today"},
					&cli.StringFlag{Name: "project", Usage: "Project", Required: true},
					&cli.StringFlag{Name: "title", Usage: "Test title", Required: true},
					&cli.StringFlag{Name: "type", Value: record.TypeEndurance, Usage: "Test type"},
					&cli.StringFlag{Name: "status", Value: record.StatusNotStarted, Usage: "Status"},
					&cli.StringFlag{Name: "failure-type", Usage: "Failure type"},
					&cli.StringFlag{Name: "failure-description", Usage: "Failure description"},
					&cli.StringFlag{Name: "observations", Usage: "Observations"},
					&cli.StringFlag{Name: "cycles", Usage: "Cycles completed; leave unset if not run"},
				},
			},
			{
				Name:   "summary",
				Usage:  "Print the status summary",
				Action: a.summary,
			},
			{
				Name:      "ask",
				Usage:     "Answer a question about the records",
				ArgsUsage: "<question>",
				Action:    a.ask,
			},
			{
				Name:   "export",
				Usage:  "Write the table to a file; the format follows the extension",
				Action: a.export,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output path, or - for CSV on stdout (default test_report_YYYYMMDD.csv)"},
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
