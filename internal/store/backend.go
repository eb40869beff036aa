package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkusaka/test-tracker/internal/record"
)

// ErrUnsupportedFormat is returned by OpenBackend for an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported storage format")

// Backend reads and fully rewrites one tabular file. Read must return an
// error matching fs.ErrNotExist when the file is absent.
type Backend interface {
	Path() string
	Read() (record.Table, error)
	Write(record.Table) error
	Close() error
}

// OpenBackend picks a backend from the file extension:
// .xlsx/.xlsm spreadsheet, .csv text, .db/.sqlite/.sqlite3 SQLite.
func OpenBackend(path string) (Backend, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return NewXLSXBackend(path), nil
	case ".csv":
		return NewCSVBackend(path), nil
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteBackend(path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it over path, so readers never see a half-written table.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// CSVBackend stores the table as comma-separated text.
type CSVBackend struct {
	path string
}

func NewCSVBackend(path string) *CSVBackend {
	return &CSVBackend{path: path}
}

func (b *CSVBackend) Path() string { return b.path }

func (b *CSVBackend) Read() (record.Table, error) {
	f, err := os.Open(b.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return record.ReadCSV(f)
}

func (b *CSVBackend) Write(t record.Table) error {
	return writeFileAtomic(b.path, func(w io.Writer) error {
		return record.WriteCSV(w, t)
	})
}

func (b *CSVBackend) Close() error { return nil }
