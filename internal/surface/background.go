package surface

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fakebuster/fakebuster/internal/detect"
	"github.com/fakebuster/fakebuster/internal/messaging"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/pipeline"
)

// CheckTextTitle is the label of the text selection action.
const CheckTextTitle = "Check if AI-generated"

// SelectionSource is stored as the source of text history entries.
const SelectionSource = "selection"

// Background answers detection requests from other surfaces.
type Background struct {
	bus        *messaging.Bus
	scorer     detect.Scorer
	recorder   pipeline.Recorder
	thresholds model.Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

// BackgroundOption configures a Background.
type BackgroundOption func(*Background)

// WithRecorder records text verdicts in the history store.
func WithRecorder(r pipeline.Recorder) BackgroundOption {
	return func(b *Background) {
		b.recorder = r
	}
}

// WithThresholds sets the thresholds used to classify text verdicts.
func WithThresholds(t model.Thresholds) BackgroundOption {
	return func(b *Background) {
		b.thresholds = t
	}
}

// WithBackgroundLogger sets a custom logger.
func WithBackgroundLogger(l *slog.Logger) BackgroundOption {
	return func(b *Background) {
		b.logger = l
	}
}

// NewBackground creates a Background and registers its handlers on bus.
func NewBackground(bus *messaging.Bus, scorer detect.Scorer, opts ...BackgroundOption) *Background {
	b := &Background{
		bus:        bus,
		scorer:     scorer,
		thresholds: model.DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	bus.Handle(messaging.ActionDetectImage, b.handleDetectImage)
	bus.Handle(messaging.ActionCheckText, b.handleCheckText)
	return b
}

func (b *Background) handleDetectImage(ctx context.Context, m messaging.Message) (messaging.Message, error) {
	req, ok := m.(messaging.DetectImage)
	if !ok {
		return nil, fmt.Errorf("detectImage: unexpected message %T", m)
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("detectImage: %w", detect.ErrEmptyInput)
	}

	result := b.scorer.ScoreImage(ctx, req.URL)
	return messaging.ImageScore{Score: result.Score, Fallback: result.Fallback}, nil
}

func (b *Background) handleCheckText(ctx context.Context, m messaging.Message) (messaging.Message, error) {
	req, ok := m.(messaging.CheckText)
	if !ok {
		return nil, fmt.Errorf("checkText: unexpected message %T", m)
	}
	return b.CheckText(ctx, req)
}

// CheckText scores a text selection, records the verdict, delivers it to
// the content surface and returns it.
func (b *Background) CheckText(ctx context.Context, req messaging.CheckText) (messaging.TextResult, error) {
	pageURL, text := req.PageURL, req.Text
	if strings.TrimSpace(text) == "" {
		return messaging.TextResult{}, fmt.Errorf("checkText: %w", detect.ErrEmptyInput)
	}

	verdict := b.scorer.ScoreText(ctx, text)
	c := b.thresholds.Classify(verdict.Score.Score)

	if b.recorder != nil {
		entry := pipeline.NewHistoryEntry(pageURL, SelectionSource, c, verdict.Score, b.now())
		entry.MediaType = model.MediaText
		if _, err := b.recorder.RecordScan(ctx, entry); err != nil {
			b.logger.Warn("failed to record text verdict", "page", pageURL, "error", err)
		}
	}

	b.bus.Post(messaging.ShowResult{ResultText: verdict.ResultText, Selector: req.Selector})

	b.logger.Debug("text checked",
		"page", pageURL,
		"percent", verdict.Percent,
		"classification", c.String(),
	)
	return messaging.TextResult{
		ResultText: verdict.ResultText,
		Percent:    verdict.Percent,
		Model:      verdict.Model,
	}, nil
}
