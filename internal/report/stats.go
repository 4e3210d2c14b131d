package report

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/fakebuster/fakebuster/internal/model"
)

// RecentLimit is the number of history entries shown in Stats.
const RecentLimit = 10

// UnknownDomain is shown for history entries whose URL cannot be parsed.
const UnknownDomain = "Unknown"

// StatsSource is the part of the history store the stats view reads.
// database.Store implements it.
type StatsSource interface {
	Counters(ctx context.Context) (model.Counters, error)
	History(ctx context.Context, limit int) ([]model.ScanHistoryEntry, error)
	LastChecked(ctx context.Context) (time.Time, error)
	DetectionEnabled(ctx context.Context) (bool, error)
}

// Stats is the statistics view.
type Stats struct {
	TotalScans       int64         `json:"totalScans"`
	FakeImageCount   int64         `json:"fakeImageCount"`
	FakeTextCount    int64         `json:"fakeTextCount"`
	FakeRatio        int           `json:"fakeRatio"`
	DetectionEnabled bool          `json:"detectionEnabled"`
	LastChecked      time.Time     `json:"lastChecked,omitzero"`
	Recent           []RecentEntry `json:"recent"`
}

// RecentEntry is one row of the recent scans table.
type RecentEntry struct {
	Timestamp  time.Time       `json:"timestamp"`
	URL        string          `json:"url"`
	Domain     string          `json:"domain"`
	Status     string          `json:"status"`
	Confidence int             `json:"confidence"`
	MediaType  model.MediaType `json:"mediaType"`
}

// BuildStats reads the store and assembles the view.
func BuildStats(ctx context.Context, src StatsSource) (*Stats, error) {
	counters, err := src.Counters(ctx)
	if err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	history, err := src.History(ctx, RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	lastChecked, err := src.LastChecked(ctx)
	if err != nil {
		return nil, fmt.Errorf("read last checked: %w", err)
	}
	enabled, err := src.DetectionEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("read detection toggle: %w", err)
	}
	return NewStats(counters, history, lastChecked, enabled), nil
}

// NewStats builds the view from raw store data. history may be in any order
// and of any length.
func NewStats(c model.Counters, history []model.ScanHistoryEntry, lastChecked time.Time, enabled bool) *Stats {
	sorted := make([]model.ScanHistoryEntry, len(history))
	copy(sorted, history)
	sortNewestFirst(sorted)
	if len(sorted) > RecentLimit {
		sorted = sorted[:RecentLimit]
	}

	recent := make([]RecentEntry, 0, len(sorted))
	for _, e := range sorted {
		recent = append(recent, RecentEntry{
			Timestamp:  e.Timestamp,
			URL:        e.PageURL,
			Domain:     Domain(e.PageURL),
			Status:     e.Classification.Title(),
			Confidence: int(math.Round(e.Score * 100)),
			MediaType:  e.MediaType,
		})
	}

	return &Stats{
		TotalScans:       c.TotalScans,
		FakeImageCount:   c.FakeImageCount,
		FakeTextCount:    c.FakeTextCount,
		FakeRatio:        FakeRatio(c),
		DetectionEnabled: enabled,
		LastChecked:      lastChecked,
		Recent:           recent,
	}
}

func sortNewestFirst(entries []model.ScanHistoryEntry) {
	slices.SortStableFunc(entries, func(a, b model.ScanHistoryEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}

// FakeRatio returns the share of fake verdicts in percent, rounded.
func FakeRatio(c model.Counters) int {
	if c.TotalScans <= 0 {
		return 0
	}
	return int(math.Round(float64(c.FakeTotal()) / float64(c.TotalScans) * 100))
}

// Domain returns the hostname of raw without a "www." prefix.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return UnknownDomain
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// StatusLine describes the detection toggle.
func StatusLine(enabled bool) string {
	if enabled {
		return "Active - Scanning for AI content"
	}
	return "Paused - Not scanning"
}
