package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mkusaka/test-tracker/internal/record"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates holds all page templates, keyed by file name.
type Templates struct {
	pages map[string]*template.Template
}

// ExecuteTemplate renders a page inside the layout.
func (t *Templates) ExecuteTemplate(w io.Writer, name string, data any) error {
	tmpl, ok := t.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}

var printer = message.NewPrinter(language.English)

// LoadTemplates parses the embedded templates. Each page gets its own clone
// of the layout and partials so {{define "content"}} doesn't collide.
func LoadTemplates() (*Templates, error) {
	funcMap := template.FuncMap{
		"pct":    func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
		"number": func(n int) string { return printer.Sprintf("%d", n) },
		"barWidth": func(n, max int) template.CSS {
			if max == 0 {
				return "0%"
			}
			return template.CSS(fmt.Sprintf("%d%%", n*100/max))
		},
		"statusClass": statusClass,
		"cycles":      func(c record.Cycles) string { return c.String() },
		"columns":     record.Header,
	}

	base, err := template.New("base").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	pages := map[string]*template.Template{}
	for _, f := range files {
		name := path.Base(f)
		if name == "layout.html" || name == "partials.html" {
			continue
		}
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone base template: %w", err)
		}
		if _, err := clone.ParseFS(templateFS, f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = clone
	}
	return &Templates{pages: pages}, nil
}

func statusClass(status string) string {
	switch status {
	case record.StatusPass:
		return "status-pass"
	case record.StatusFail:
		return "status-fail"
	case record.StatusInProgress:
		return "status-progress"
	default:
		return "status-other"
	}
}
