package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mkusaka/test-tracker/internal/record"
)

func tableWithEdgeCases() record.Table {
	t := record.Sample()
	t = append(t,
		record.Record{TestID: "TST_006", Date: "2024-09-04", Project: "Other", Title: "Zero cycle run, \"dry\"", TestType: "Safety", Status: record.StatusNotStarted, CyclesCompleted: record.CyclesOf(0)},
		record.Record{TestID: "TST_007", Project: "N597", Title: "No date", Observations: "multi\nline"},
	)
	return t
}

func TestBackendRoundTrip(t *testing.T) {
	for _, name := range []string{"records.xlsx", "records.csv", "records.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			b, err := OpenBackend(path)
			if err != nil {
				t.Fatalf("OpenBackend: %v", err)
			}
			defer b.Close()

			want := tableWithEdgeCases()
			if err := b.Write(want); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := b.Read()
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			// A second write replaces, never appends.
			if err := b.Write(want[:2]); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err = b.Read()
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if len(got) != 2 {
				t.Errorf("rows after rewrite = %d, want 2", len(got))
			}
		})
	}
}

func TestBackendReadMissingFile(t *testing.T) {
	for _, name := range []string{"missing.xlsx", "missing.csv", "missing.db"} {
		b, err := OpenBackend(filepath.Join(t.TempDir(), name))
		if err != nil {
			t.Fatalf("OpenBackend(%s): %v", name, err)
		}
		if _, err := b.Read(); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s: Read error = %v, want ErrNotExist", name, err)
		}
		b.Close()
	}
}

func TestOpenBackendUnsupported(t *testing.T) {
	_, err := OpenBackend("records.json")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoadSeedsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "sample_data.xlsx")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(record.Sample(), got); diff != "" {
		t.Errorf("seeded table mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("sample was not persisted: %v", err)
	}
	if s.Notice() != nil {
		t.Errorf("Notice = %v, want nil", s.Notice())
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second load differs (-first +second):\n%s", diff)
	}
}

func TestLoadCorruptFileFallsBack(t *testing.T) {
	for _, name := range []string{"broken.xlsx", "broken.csv", "broken.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := os.WriteFile(path, []byte("this is not a table\x00\x01"), 0o644); err != nil {
				t.Fatal(err)
			}
			now := time.Date(2024, 9, 5, 8, 0, 0, 0, time.UTC)
			s, err := Open(path, WithClock(func() time.Time { return now }))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()

			got, err := s.Load()
			var fb *FallbackError
			if !errors.As(err, &fb) {
				t.Fatalf("Load error = %v, want *FallbackError", err)
			}
			if diff := cmp.Diff(record.Sample(), got); diff != "" {
				t.Errorf("fallback table mismatch (-want +got):\n%s", diff)
			}
			if fb.MovedTo == "" || !strings.HasSuffix(fb.MovedTo, ".corrupt-1725523200") {
				t.Errorf("MovedTo = %q", fb.MovedTo)
			}
			kept, err := os.ReadFile(fb.MovedTo)
			if err != nil {
				t.Fatalf("corrupt file not kept: %v", err)
			}
			if !strings.HasPrefix(string(kept), "this is not a table") {
				t.Errorf("kept file content changed")
			}
			if s.Notice() == nil {
				t.Error("Notice should report the fallback")
			}

			// The sample is now the baseline and loads cleanly.
			again, err := s.Load()
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if len(again) != 5 {
				t.Errorf("reloaded rows = %d, want 5", len(again))
			}
		})
	}
}

func TestAppendRejectsEmptyTestID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.xlsx")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Append(record.Record{TestID: "", Project: "Apache", Title: "X"})
	if !errors.Is(err, record.ErrValidation) {
		t.Fatalf("Append error = %v, want validation error", err)
	}
	if len(got) != 5 || len(s.Snapshot()) != 5 {
		t.Errorf("table length changed: returned %d, snapshot %d", len(got), len(s.Snapshot()))
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("rejected append rewrote storage")
	}
}

func TestAppendPersistsWholeTable(t *testing.T) {
	for _, name := range []string{"records.xlsx", "records.csv", "records.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			s, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if _, err := s.Load(); err != nil {
				t.Fatalf("Load: %v", err)
			}
			rec := record.Record{TestID: "TST_006", Date: "2024-09-05", Project: "N597", Title: "Kick Stand", TestType: "Safety", Status: record.StatusPass, CyclesCompleted: record.CyclesOf(1000)}
			got, err := s.Append(rec)
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			if len(got) != 6 || got[5].TestID != "TST_006" {
				t.Fatalf("unexpected table after append: %+v", got)
			}
			s.Close()

			reopened, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer reopened.Close()
			loaded, err := reopened.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(got, loaded); diff != "" {
				t.Errorf("persisted table mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAppendLoadsFirstWhenNeeded(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "records.csv"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := s.Append(record.Record{TestID: "TST_006", Project: "MD1", Title: "Fork"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(got) != 6 {
		t.Errorf("rows = %d, want sample plus one", len(got))
	}
}

func TestReloadIfStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	start := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	ttl := time.Minute

	if _, reloaded, err := s.ReloadIfStale(start, ttl); err != nil || !reloaded {
		t.Fatalf("first ReloadIfStale: reloaded=%v err=%v", reloaded, err)
	}

	// Another writer changes the file behind the store's back.
	other := NewCSVBackend(path)
	if err := other.Write(record.Sample()[:1]); err != nil {
		t.Fatal(err)
	}

	got, reloaded, err := s.ReloadIfStale(start.Add(30*time.Second), ttl)
	if err != nil || reloaded {
		t.Fatalf("fresh ReloadIfStale: reloaded=%v err=%v", reloaded, err)
	}
	if len(got) != 5 {
		t.Errorf("cached rows = %d, want 5", len(got))
	}

	got, reloaded, err = s.ReloadIfStale(start.Add(ttl), ttl)
	if err != nil || !reloaded {
		t.Fatalf("stale ReloadIfStale: reloaded=%v err=%v", reloaded, err)
	}
	if len(got) != 1 {
		t.Errorf("reloaded rows = %d, want 1", len(got))
	}
	if !s.LoadedAt().Equal(start.Add(ttl)) {
		t.Errorf("LoadedAt = %v", s.LoadedAt())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "records.csv"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	snap[0].Status = "tampered"
	if s.Snapshot()[0].Status == "tampered" {
		t.Error("Snapshot shares memory with the store")
	}
}

func TestAppendStoresLineBreaksAsReadBack(t *testing.T) {
	for _, name := range []string{"records.xlsx", "records.csv", "records.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			s, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()

			_, err = s.Append(record.Record{
				TestID: "TST_006", Project: "MD1", Title: "Fork",
				FailureDescription: "seal\r\nleak", Observations: "line one\r\nline two",
			})
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			want := s.Snapshot()
			if got := want[len(want)-1].Observations; got != "line one\nline two" {
				t.Errorf("Observations = %q", got)
			}

			b, err := OpenBackend(path)
			if err != nil {
				t.Fatalf("OpenBackend: %v", err)
			}
			defer b.Close()
			got, err := b.Read()
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("stored table mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAppendRejectsTextLongerThanACell(t *testing.T) {
	for _, name := range []string{"records.xlsx", "records.csv", "records.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			s, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if _, err := s.Load(); err != nil {
				t.Fatalf("Load: %v", err)
			}

			_, err = s.Append(record.Record{
				TestID: "TST_006", Project: "MD1", Title: "Fork",
				Observations: strings.Repeat("x", 40000),
			})
			if !errors.Is(err, record.ErrValidation) {
				t.Fatalf("Append error = %v, want validation error", err)
			}
			if n := len(s.Snapshot()); n != 5 {
				t.Errorf("rows = %d, want 5", n)
			}
		})
	}
}

func TestXLSXWriteRejectsOverlongCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.xlsx")
	table := record.Table{{TestID: "TST_1", Project: "MD1", Title: "Long", Observations: strings.Repeat("x", 40000)}}
	err := NewXLSXBackend(path).Write(table)
	if err == nil {
		t.Fatal("expected error for text longer than a cell")
	}
	if !strings.Contains(err.Error(), "Observations") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("workbook should not be written, stat err = %v", err)
	}
}

func TestLoadAcceptsCSVWithByteOrderMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	var buf strings.Builder
	buf.WriteString("\ufeff")
	if err := record.WriteCSV(&buf, record.Table{{TestID: "MINE_1", Project: "MD1", Title: "Mine"}}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].TestID != "MINE_1" {
		t.Errorf("Load = %+v, want the file's own row", got)
	}
	if matches, _ := filepath.Glob(path + ".corrupt-*"); len(matches) != 0 {
		t.Errorf("file was moved aside: %v", matches)
	}
}
