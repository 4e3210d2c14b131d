package surface

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/fakebuster/fakebuster/internal/annotate"
	"github.com/fakebuster/fakebuster/internal/detect"
	"github.com/fakebuster/fakebuster/internal/messaging"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/orchestrator"
)

// Store is the part of the history store used by the content surface.
type Store interface {
	Counters(ctx context.Context) (model.Counters, error)
	SetDetectionEnabled(ctx context.Context, enabled bool) error
}

// Content serves one page.
type Content struct {
	orch   *orchestrator.Orchestrator
	store  Store
	logger *slog.Logger

	tooltips chan *annotate.Tooltip
}

// ContentOption configures a Content.
type ContentOption func(*Content)

// WithContentLogger sets a custom logger.
func WithContentLogger(l *slog.Logger) ContentOption {
	return func(c *Content) {
		c.logger = l
	}
}

// NewContent creates a Content for orch and registers its handlers on bus.
func NewContent(bus *messaging.Bus, orch *orchestrator.Orchestrator, store Store, opts ...ContentOption) *Content {
	c := &Content{
		orch:     orch,
		store:    store,
		tooltips: make(chan *annotate.Tooltip, 8),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	bus.Handle(messaging.ActionDetectImages, c.handleScan)
	bus.Handle(messaging.ActionScanPage, c.handleScan)
	bus.Handle(messaging.ActionToggleDetection, c.handleToggle)
	bus.Handle(messaging.ActionGetDetectionCounts, c.handleCounts)
	bus.Handle(messaging.ActionShowResult, c.handleShowResult)
	return c
}

// Tooltips delivers every tooltip shown by the content surface. Tooltips
// are dropped when nobody reads them.
func (c *Content) Tooltips() <-chan *annotate.Tooltip {
	return c.tooltips
}

func (c *Content) handleScan(_ context.Context, _ messaging.Message) (messaging.Message, error) {
	c.orch.Trigger(model.TriggerMessage)
	return messaging.Ack{}, nil
}

func (c *Content) handleToggle(ctx context.Context, m messaging.Message) (messaging.Message, error) {
	req, ok := m.(messaging.ToggleDetection)
	if !ok {
		return nil, fmt.Errorf("toggleDetection: unexpected message %T", m)
	}

	if err := c.store.SetDetectionEnabled(ctx, req.Enabled); err != nil {
		c.logger.Warn("failed to persist detection toggle", "enabled", req.Enabled, "error", err)
	}
	if req.Enabled {
		c.orch.Trigger(model.TriggerMessage)
	}
	return messaging.Ack{}, nil
}

func (c *Content) handleCounts(ctx context.Context, _ messaging.Message) (messaging.Message, error) {
	counters, err := c.store.Counters(ctx)
	if err != nil {
		c.logger.Warn("failed to read counters, reporting zero", "error", err)
		counters = model.Counters{}
	}
	return messaging.DetectionCounts{
		TotalDetectionCount: counters.TotalScans,
		TotalFakeImageCount: counters.FakeImageCount,
		TotalFakeTextCount:  counters.FakeTextCount,
	}, nil
}

func (c *Content) handleShowResult(ctx context.Context, m messaging.Message) (messaging.Message, error) {
	req, ok := m.(messaging.ShowResult)
	if !ok {
		return nil, fmt.Errorf("showResult: unexpected message %T", m)
	}

	doc, err := c.orch.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("showResult: %w", err)
	}

	percent := detect.ParsePercent(req.ResultText)
	verdict := model.TextVerdict{
		Percent:    percent,
		ResultText: req.ResultText,
		Score:      model.ScoreResult{Score: percent / 100, Media: model.MediaText},
	}
	var anchor *html.Node
	if req.Selector != "" {
		if anchor = doc.Query(req.Selector); anchor == nil {
			c.logger.Debug("selection anchor not found, showing result at the top of the page",
				"selector", req.Selector)
		}
	}
	tip := c.orch.Renderer().RenderText(doc, verdict, anchor)

	select {
	case c.tooltips <- tip:
	default:
	}
	return nil, nil
}
