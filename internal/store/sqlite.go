package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mkusaka/test-tracker/internal/record"
)

// SQLiteBackend stores the table in a single test_records table. Row order
// is kept in the position column.
type SQLiteBackend struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path}
}

func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) open() (*sql.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", b.path, err)
	}
	db, err := sql.Open("sqlite", b.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database %s: %w", b.path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	b.db = db
	return db, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS test_records (
			position INTEGER PRIMARY KEY,
			test_id TEXT NOT NULL,
			date TEXT,
			project TEXT,
			title TEXT,
			test_type TEXT,
			status TEXT,
			failure_type TEXT,
			failure_description TEXT,
			observations TEXT,
			cycles_completed INTEGER
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create test_records table: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Read() (record.Table, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// sql.Open would create the file, which would hide a missing store.
	if _, err := os.Stat(b.path); err != nil {
		return nil, err
	}
	db, err := b.open()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT
		COALESCE(test_id, ''), COALESCE(date, ''), COALESCE(project, ''), COALESCE(title, ''),
		COALESCE(test_type, ''), COALESCE(status, ''), COALESCE(failure_type, ''),
		COALESCE(failure_description, ''), COALESCE(observations, ''), cycles_completed
		FROM test_records ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query test_records: %w", err)
	}
	defer rows.Close()

	t := record.Table{}
	for rows.Next() {
		var r record.Record
		var cycles sql.NullInt64
		if err := rows.Scan(&r.TestID, &r.Date, &r.Project, &r.Title, &r.TestType, &r.Status,
			&r.FailureType, &r.FailureDescription, &r.Observations, &cycles); err != nil {
			return nil, fmt.Errorf("scan test_records: %w", err)
		}
		if cycles.Valid {
			r.CyclesCompleted = record.CyclesOf(int(cycles.Int64))
		}
		t = append(t, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test_records: %w", err)
	}
	return t, nil
}

// Write replaces every row inside one transaction.
func (b *SQLiteBackend) Write(t record.Table) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	db, err := b.open()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM test_records"); err != nil {
		return fmt.Errorf("clear test_records: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO test_records
		(position, test_id, date, project, title, test_type, status,
		 failure_type, failure_description, observations, cycles_completed)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range t {
		if _, err := stmt.Exec(i, r.TestID, r.Date, r.Project, r.Title, r.TestType, r.Status,
			r.FailureType, r.FailureDescription, r.Observations, nullableCycles(r.CyclesCompleted)); err != nil {
			return fmt.Errorf("insert %s: %w", r.TestID, err)
		}
	}
	return tx.Commit()
}

func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func nullableCycles(c record.Cycles) any {
	n, ok := c.Value()
	if !ok {
		return nil
	}
	return n
}
