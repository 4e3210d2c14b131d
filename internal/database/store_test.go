package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fakebuster/fakebuster/internal/model"
)

// setupTestDB creates a temporary store for testing.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(id string, c model.Classification, media model.MediaType, at time.Time) model.ScanHistoryEntry {
	return model.ScanHistoryEntry{
		ID:             id,
		PageURL:        "https://www.example.com/article",
		Timestamp:      at,
		Classification: c,
		Score:          0.5,
		MediaType:      media,
		Source:         "https://cdn.example.com/" + id + ".jpg",
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		s, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer s.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if s.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %q", s.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "missing")
		_, err := Open(dbDir, Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		s1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		if err := s1.SetDetectionEnabled(context.Background(), false); err != nil {
			t.Fatalf("SetDetectionEnabled() error = %v", err)
		}
		_ = s1.Close()

		s2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer s2.Close()

		enabled, err := s2.DetectionEnabled(context.Background())
		if err != nil || enabled {
			t.Errorf("expected persisted disabled flag, got %v, %v", enabled, err)
		}
	})
}

func TestRecordScan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupTestDB(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []model.ScanHistoryEntry{
		entry("a", model.ClassificationFake, model.MediaImage, base),
		entry("b", model.ClassificationReal, model.MediaImage, base.Add(time.Second)),
		entry("c", model.ClassificationFake, model.MediaText, base.Add(2*time.Second)),
		entry("d", model.ClassificationSuspicious, model.MediaImage, base.Add(3*time.Second)),
		entry("e", model.ClassificationFake, model.MediaImage, base.Add(4*time.Second)),
	}

	var last model.Counters
	for _, e := range entries {
		c, err := s.RecordScan(ctx, e)
		if err != nil {
			t.Fatalf("RecordScan(%s) error = %v", e.ID, err)
		}
		last = c
	}

	want := model.Counters{TotalScans: 5, FakeImageCount: 2, FakeTextCount: 1}
	if last != want {
		t.Errorf("RecordScan returned %+v, want %+v", last, want)
	}

	got, err := s.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if got != want {
		t.Errorf("Counters() = %+v, want %+v", got, want)
	}

	history, err := s.History(ctx, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if int64(len(history)) != got.TotalScans {
		t.Errorf("history has %d entries, counters say %d", len(history), got.TotalScans)
	}
	if history[0].ID != "e" || history[len(history)-1].ID != "a" {
		t.Errorf("expected newest first, got %s..%s", history[0].ID, history[len(history)-1].ID)
	}
	if history[0].Source != "https://cdn.example.com/e.jpg" || history[0].MediaType != model.MediaImage {
		t.Errorf("unexpected round-tripped entry %+v", history[0])
	}

	limited, err := s.History(ctx, 2)
	if err != nil {
		t.Fatalf("History(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 entries, got %d", len(limited))
	}

	lastChecked, err := s.LastChecked(ctx)
	if err != nil {
		t.Fatalf("LastChecked() error = %v", err)
	}
	if !lastChecked.Equal(base.Add(4 * time.Second)) {
		t.Errorf("LastChecked() = %v", lastChecked)
	}
}

func TestRecordScanConcurrentWriters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupTestDB(t)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := range writers {
		wg.Go(func() {
			for i := range perWriter {
				c := model.ClassificationReal
				if i%5 == 0 {
					c = model.ClassificationFake
				}
				e := entry(fmt.Sprintf("w%d-%d", w, i), c, model.MediaImage, time.Now())
				if _, err := s.RecordScan(ctx, e); err != nil {
					t.Errorf("RecordScan error = %v", err)
				}
			}
		})
	}
	wg.Wait()

	got, err := s.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if got.TotalScans != writers*perWriter {
		t.Errorf("expected %d scans, got %d", writers*perWriter, got.TotalScans)
	}
	if got.FakeImageCount != writers*perWriter/5 {
		t.Errorf("expected %d fake images, got %d", writers*perWriter/5, got.FakeImageCount)
	}
}

func TestRecordScanDuplicateIDRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupTestDB(t)

	e := entry("dup", model.ClassificationFake, model.MediaImage, time.Now())
	if _, err := s.RecordScan(ctx, e); err != nil {
		t.Fatalf("first RecordScan error = %v", err)
	}
	if _, err := s.RecordScan(ctx, e); err == nil {
		t.Fatal("expected error for duplicate id")
	}

	got, err := s.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if got.TotalScans != 1 || got.FakeImageCount != 1 {
		t.Errorf("counters changed by failed write: %+v", got)
	}
}

func TestDetectionEnabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupTestDB(t)

	enabled, err := s.DetectionEnabled(ctx)
	if err != nil || !enabled {
		t.Fatalf("expected enabled by default, got %v, %v", enabled, err)
	}

	for _, want := range []bool{false, true, false} {
		if err := s.SetDetectionEnabled(ctx, want); err != nil {
			t.Fatalf("SetDetectionEnabled(%v) error = %v", want, err)
		}
		got, err := s.DetectionEnabled(ctx)
		if err != nil {
			t.Fatalf("DetectionEnabled() error = %v", err)
		}
		if got != want {
			t.Errorf("DetectionEnabled() = %v, want %v", got, want)
		}
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupTestDB(t)

	if _, err := s.RecordScan(ctx, entry("x", model.ClassificationFake, model.MediaText, time.Now())); err != nil {
		t.Fatalf("RecordScan error = %v", err)
	}
	if err := s.SetDetectionEnabled(ctx, false); err != nil {
		t.Fatalf("SetDetectionEnabled error = %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	c, _ := s.Counters(ctx)
	if c != (model.Counters{}) {
		t.Errorf("expected zero counters, got %+v", c)
	}
	h, _ := s.History(ctx, 0)
	if len(h) != 0 {
		t.Errorf("expected empty history, got %d", len(h))
	}
	lc, _ := s.LastChecked(ctx)
	if !lc.IsZero() {
		t.Errorf("expected zero last checked, got %v", lc)
	}
	enabled, _ := s.DetectionEnabled(ctx)
	if enabled {
		t.Error("Reset must keep the detection toggle")
	}
}

func TestSavePass(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupTestDB(t)

	pass := model.NewScanPass("https://example.com/", model.TriggerLoad)
	pass.Results = append(pass.Results,
		model.ScoredTarget{Classification: model.ClassificationFake},
		model.ScoredTarget{Classification: model.ClassificationReal},
	)
	pass.Reannotated = 2

	if err := s.SavePass(ctx, pass); err != nil {
		t.Fatalf("SavePass() error = %v", err)
	}

	latest, err := s.RecentPasses(ctx, "https://example.com/", 1)
	if err != nil {
		t.Fatalf("RecentPasses() error = %v", err)
	}
	if len(latest) != 1 || len(latest[0].Results) != 2 || latest[0].Trigger != model.TriggerLoad {
		t.Fatalf("unexpected passes %+v", latest)
	}

	missing, err := s.RecentPasses(ctx, "https://other.example/", 1)
	if err != nil || len(missing) != 0 {
		t.Errorf("expected no pass for unknown page, got %+v, %v", missing, err)
	}

	summaries, err := s.PassHistory(ctx, "")
	if err != nil {
		t.Fatalf("PassHistory() error = %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if summaries[0].Counts["fake"] != 1 || summaries[0].Reannotated != 2 {
		t.Errorf("unexpected summary %+v", summaries[0])
	}
}

func TestRecentPasses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupTestDB(t)

	for _, trigger := range []model.TriggerSource{model.TriggerLoad, model.TriggerMutation, model.TriggerScroll} {
		if err := s.SavePass(ctx, model.NewScanPass("https://example.com/", trigger)); err != nil {
			t.Fatalf("SavePass() error = %v", err)
		}
	}
	if err := s.SavePass(ctx, model.NewScanPass("https://other.example/", model.TriggerLoad)); err != nil {
		t.Fatalf("SavePass() error = %v", err)
	}

	passes, err := s.RecentPasses(ctx, "https://example.com/", 2)
	if err != nil {
		t.Fatalf("RecentPasses() error = %v", err)
	}
	if len(passes) != 2 {
		t.Fatalf("expected 2 passes, got %d", len(passes))
	}
	if passes[0].Trigger != model.TriggerScroll || passes[1].Trigger != model.TriggerMutation {
		t.Errorf("expected newest first, got %s then %s", passes[0].Trigger, passes[1].Trigger)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		zero bool
	}{
		{"2026-03-01T12:00:00.000000000Z", false},
		{"2026-03-01 12:00:00", false},
		{"2026-03-01T12:00:00Z", false},
		{"not a time", true},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.in); got.IsZero() != tt.zero {
			t.Errorf("parseTimestamp(%q) = %v", tt.in, got)
		}
	}
}
