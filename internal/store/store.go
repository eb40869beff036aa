// Package store owns the canonical record table and keeps it in step with
// the file it was loaded from.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkusaka/test-tracker/internal/record"
)

// FallbackError reports that storage could not be used and the sample table
// was substituted. It is recoverable: the table returned alongside it is
// usable.
type FallbackError struct {
	Path string
	// MovedTo is where an unreadable file was moved before the sample was
	// written. Empty when nothing was moved.
	MovedTo string
	Err     error
}

func (e *FallbackError) Error() string {
	msg := fmt.Sprintf("error loading %s, using sample data: %v", e.Path, e.Err)
	if e.MovedTo != "" {
		msg += fmt.Sprintf(" (original kept at %s)", e.MovedTo)
	}
	return msg
}

func (e *FallbackError) Unwrap() error { return e.Err }

// Store holds the table loaded from a Backend. Every successful Append
// rewrites the whole file.
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	table    record.Table
	loaded   bool
	loadedAt time.Time
	notice   error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for seeding and fallback messages.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps a backend. Nothing is read until Load.
func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open selects a backend for path by extension and wraps it.
func Open(path string, opts ...Option) (*Store, error) {
	b, err := OpenBackend(path)
	if err != nil {
		return nil, err
	}
	return New(b, opts...), nil
}

// Path returns the storage file.
func (s *Store) Path() string { return s.backend.Path() }

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

// Load reads storage. A missing file is seeded with the sample table. A file
// that cannot be read is moved aside, replaced by the sample table, and
// reported as a *FallbackError next to the sample table.
func (s *Store) Load() (record.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(s.now())
}

// ReloadIfStale reloads when nothing has been loaded yet or the last load is
// at least ttl old at now. It reports whether a reload happened.
func (s *Store) ReloadIfStale(now time.Time, ttl time.Duration) (record.Table, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded && now.Sub(s.loadedAt) < ttl {
		return s.table.Clone(), false, nil
	}
	t, err := s.load(now)
	return t, true, err
}

func (s *Store) load(now time.Time) (record.Table, error) {
	path := s.backend.Path()
	table, err := s.backend.Read()
	var loadErr error

	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		table = record.Sample()
		s.logger.Info("seeding storage with sample data", zap.String("path", path))
		if werr := s.backend.Write(table); werr != nil {
			s.logger.Warn("failed to persist sample data", zap.String("path", path), zap.Error(werr))
			loadErr = &FallbackError{Path: path, Err: werr}
		}
	default:
		s.logger.Warn("failed to read storage, using sample data", zap.String("path", path), zap.Error(err))
		fallback := &FallbackError{Path: path, Err: err}
		table = record.Sample()
		moved, qerr := s.quarantine(now)
		if qerr != nil {
			s.logger.Warn("unreadable storage left in place", zap.String("path", path), zap.Error(qerr))
		} else if werr := s.backend.Write(table); werr != nil {
			s.logger.Warn("failed to persist sample data", zap.String("path", path), zap.Error(werr))
		}
		fallback.MovedTo = moved
		loadErr = fallback
	}

	s.table = table
	s.loaded = true
	s.loadedAt = now
	s.notice = loadErr
	return table.Clone(), loadErr
}

// quarantine renames an unreadable file so the sample baseline never
// overwrites it.
func (s *Store) quarantine(now time.Time) (string, error) {
	if err := s.backend.Close(); err != nil {
		return "", err
	}
	path := s.backend.Path()
	dst := fmt.Sprintf("%s.corrupt-%d", path, now.Unix())
	if err := os.Rename(path, dst); err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(path + suffix); err == nil {
			_ = os.Rename(path+suffix, dst+suffix)
		}
	}
	s.logger.Warn("moved unreadable storage aside", zap.String("path", path), zap.String("moved_to", dst))
	return dst, nil
}

// Append validates r, adds it to the end of the table and rewrites storage.
// A validation or write error leaves the table unchanged.
func (s *Store) Append(r record.Record) (record.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if _, err := s.load(s.now()); err != nil {
			var fb *FallbackError
			if !errors.As(err, &fb) {
				return nil, err
			}
		}
	}

	next, err := s.table.Append(r)
	if err != nil {
		return s.table.Clone(), err
	}
	if err := s.backend.Write(next); err != nil {
		return s.table.Clone(), fmt.Errorf("persist table: %w", err)
	}
	s.table = next
	s.logger.Debug("record appended", zap.String("test_id", r.TestID), zap.Int("rows", len(next)))
	return next.Clone(), nil
}

// Snapshot returns a copy of the current table.
func (s *Store) Snapshot() record.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Clone()
}

// LoadedAt returns the time of the last load.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Notice returns the fallback error from the most recent load, if any.
func (s *Store) Notice() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notice
}
