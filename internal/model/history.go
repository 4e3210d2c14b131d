package model

import "time"

// ScanHistoryEntry is one immutable record in the append-only scan log.
type ScanHistoryEntry struct {
	ID             string         `json:"id"`
	PageURL        string         `json:"url"`
	Timestamp      time.Time      `json:"timestamp"`
	Classification Classification `json:"result"`
	Score          float64        `json:"confidence"`
	MediaType      MediaType      `json:"media_type"`
	Source         string         `json:"source"`
}

// Counters are the running totals kept next to the history.
// All fields are monotonically non-decreasing.
type Counters struct {
	TotalScans     int64 `json:"totalScans"`
	FakeImageCount int64 `json:"fakeImageCount"`
	FakeTextCount  int64 `json:"fakeTextCount"`
}

// Apply returns the counters after recording entry: the total always grows
// by one, and the fake counter matching the entry's media type grows when
// the entry is classified fake.
func (c Counters) Apply(entry ScanHistoryEntry) Counters {
	c.TotalScans++
	if entry.Classification == ClassificationFake {
		switch entry.MediaType {
		case MediaImage:
			c.FakeImageCount++
		case MediaText:
			c.FakeTextCount++
		}
	}
	return c
}

// FakeTotal returns the number of fake detections across media types.
func (c Counters) FakeTotal() int64 {
	return c.FakeImageCount + c.FakeTextCount
}
