package model

import (
	"errors"
	"testing"
)

// TestClassify tests the threshold boundaries.
func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		score float64
		want  Classification
	}{
		{name: "zero is real", score: 0, want: ClassificationReal},
		{name: "just below low is real", score: 0.2999, want: ClassificationReal},
		{name: "low boundary is suspicious", score: 0.3, want: ClassificationSuspicious},
		{name: "fallback score is suspicious", score: FallbackScore, want: ClassificationSuspicious},
		{name: "just below high is suspicious", score: 0.7999, want: ClassificationSuspicious},
		{name: "high boundary is fake", score: 0.8, want: ClassificationFake},
		{name: "one is fake", score: 1, want: ClassificationFake},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Classify(tt.score); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.score, got, tt.want)
			}
		})
	}
}

// TestClassifyExhaustive sweeps the unit interval and checks every score lands in exactly one tier.
func TestClassifyExhaustive(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()
	for i := 0; i <= 1000; i++ {
		s := float64(i) / 1000
		got := th.Classify(s)

		switch {
		case s < th.Low && got != ClassificationReal:
			t.Fatalf("score %v: expected real, got %q", s, got)
		case s >= th.High && got != ClassificationFake:
			t.Fatalf("score %v: expected fake, got %q", s, got)
		case s >= th.Low && s < th.High && got != ClassificationSuspicious:
			t.Fatalf("score %v: expected suspicious, got %q", s, got)
		}
	}
}

// TestThresholdsValidate tests that low must stay below high.
func TestThresholdsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{name: "defaults", th: DefaultThresholds(), wantErr: false},
		{name: "equal bounds", th: Thresholds{Low: 0.5, High: 0.5}, wantErr: true},
		{name: "inverted", th: Thresholds{Low: 0.9, High: 0.1}, wantErr: true},
		{name: "negative low", th: Thresholds{Low: -0.1, High: 0.5}, wantErr: true},
		{name: "high above one", th: Thresholds{Low: 0.1, High: 1.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.th.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidThresholds) {
				t.Errorf("expected ErrInvalidThresholds, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestParseClassification tests round-tripping the wire form.
func TestParseClassification(t *testing.T) {
	t.Parallel()

	for _, c := range []Classification{ClassificationReal, ClassificationSuspicious, ClassificationFake} {
		got, err := ParseClassification(c.String())
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", c, err)
		}
		if got != c {
			t.Errorf("got %q, want %q", got, c)
		}
	}

	if _, err := ParseClassification("maybe"); err == nil {
		t.Error("expected error for unknown classification")
	}

	if ClassificationFake.Title() != "Fake" {
		t.Errorf("unexpected title %q", ClassificationFake.Title())
	}
}
