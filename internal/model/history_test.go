package model

import "testing"

// TestCountersApply tests that counters track history entries.
func TestCountersApply(t *testing.T) {
	t.Parallel()

	entries := []ScanHistoryEntry{
		{Classification: ClassificationFake, MediaType: MediaImage},
		{Classification: ClassificationReal, MediaType: MediaImage},
		{Classification: ClassificationSuspicious, MediaType: MediaImage},
		{Classification: ClassificationFake, MediaType: MediaText},
		{Classification: ClassificationFake, MediaType: MediaImage},
	}

	var c Counters
	for _, e := range entries {
		c = c.Apply(e)
	}

	if c.TotalScans != 5 {
		t.Errorf("expected 5 total scans, got %d", c.TotalScans)
	}
	if c.FakeImageCount != 2 {
		t.Errorf("expected 2 fake images, got %d", c.FakeImageCount)
	}
	if c.FakeTextCount != 1 {
		t.Errorf("expected 1 fake text, got %d", c.FakeTextCount)
	}
	if c.FakeTotal() != 3 {
		t.Errorf("expected 3 fakes, got %d", c.FakeTotal())
	}
}

// TestScoreResultPercent tests percentage rounding.
func TestScoreResultPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  int
	}{
		{0, 0},
		{0.123, 12},
		{0.125, 13},
		{0.5, 50},
		{0.999, 100},
	}

	for _, tt := range tests {
		if got := (ScoreResult{Score: tt.score}).Percent(); got != tt.want {
			t.Errorf("Percent(%v) = %d, want %d", tt.score, got, tt.want)
		}
	}

	fb := NewFallbackResult(MediaImage)
	if !fb.Fallback || fb.Score != FallbackScore {
		t.Errorf("unexpected fallback result %+v", fb)
	}
}
