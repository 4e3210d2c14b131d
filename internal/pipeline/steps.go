package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fakebuster/fakebuster/internal/annotate"
	"github.com/fakebuster/fakebuster/internal/detect"
	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/filter"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/probe"
)

// ErrNoDocument is returned by steps that run before CollectStep set a document.
var ErrNoDocument = errors.New("no document collected")

// Recorder persists one scan result and returns the updated counters.
// database.DB implements it.
type Recorder interface {
	RecordScan(ctx context.Context, entry model.ScanHistoryEntry) (model.Counters, error)
}

// ImageProber fills natural sizes. probe.Prober implements it.
type ImageProber interface {
	Probe(ctx context.Context, imageURL string) (probe.Info, error)
}

// CollectStep snapshots the page and queries candidate images.
type CollectStep struct {
	source dom.Source
}

// NewCollectStep creates a CollectStep.
func NewCollectStep(source dom.Source) *CollectStep {
	return &CollectStep{source: source}
}

// Name returns the step name.
func (s *CollectStep) Name() string {
	return "collect"
}

// Do loads the document and lists its unchecked images.
func (s *CollectStep) Do(ctx context.Context, scan *Scan) error {
	doc, err := s.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.source.URL(), err)
	}
	scan.Doc = doc
	scan.Pass.Candidates = doc.Images()
	return nil
}

// ProbeStep learns the natural size of every unprocessed visible candidate.
// A declared box does not stand in for the natural size: a 10x10 image shown
// at 200x200 is still too small to score.
type ProbeStep struct {
	prober      ImageProber
	processed   *filter.ProcessedSet
	concurrency int
	logger      *slog.Logger
}

// NewProbeStep creates a ProbeStep. processed may be nil.
func NewProbeStep(prober ImageProber, processed *filter.ProcessedSet, concurrency int, logger *slog.Logger) *ProbeStep {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProbeStep{prober: prober, processed: processed, concurrency: concurrency, logger: logger}
}

// Name returns the step name.
func (s *ProbeStep) Name() string {
	return "probe"
}

// Do probes candidates in parallel. Probe failures leave the size unknown.
func (s *ProbeStep) Do(ctx context.Context, scan *Scan) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	candidates := scan.Pass.Candidates
	for i := range candidates {
		t := &candidates[i]
		if !s.needsProbe(t) {
			continue
		}
		g.Go(func() error {
			info, err := s.prober.Probe(gctx, t.URL)
			if err != nil {
				s.logger.Debug("image probe failed", "url", t.URL, "error", err)
				return nil
			}
			info.Apply(t)
			return nil
		})
	}
	return g.Wait()
}

func (s *ProbeStep) needsProbe(t *model.ScanTarget) bool {
	if t.Key.Empty() || !t.Visible() {
		return false
	}
	if s.processed != nil && s.processed.Has(t.Key) {
		return false
	}
	return t.NaturalWidth <= 0 || t.NaturalHeight <= 0
}

// FilterStep applies the eligibility rules.
type FilterStep struct {
	filter    *filter.Filter
	processed *filter.ProcessedSet
	logger    *slog.Logger
}

// NewFilterStep creates a FilterStep.
func NewFilterStep(f *filter.Filter, processed *filter.ProcessedSet, logger *slog.Logger) *FilterStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilterStep{filter: f, processed: processed, logger: logger}
}

// Name returns the step name.
func (s *FilterStep) Name() string {
	return "filter"
}

// Do fills Eligible and counts rejections by reason.
func (s *FilterStep) Do(_ context.Context, scan *Scan) error {
	pass := scan.Pass
	pass.Eligible = make([]model.ScanTarget, 0, len(pass.Candidates))
	for _, t := range pass.Candidates {
		reason := s.filter.Reason(t, s.processed)
		if reason == filter.ReasonEligible {
			pass.Eligible = append(pass.Eligible, t)
			continue
		}
		pass.Rejected[string(reason)]++
		s.logger.Debug("candidate rejected", "url", t.URL, "reason", string(reason))
	}
	return nil
}

// ReannotateStep marks elements whose resource was already scored on this
// page, using the cached verdict instead of a new detection call.
type ReannotateStep struct {
	cache     *ResultCache
	processed *filter.ProcessedSet
	renderer  *annotate.Renderer
}

// NewReannotateStep creates a ReannotateStep.
func NewReannotateStep(cache *ResultCache, processed *filter.ProcessedSet, renderer *annotate.Renderer) *ReannotateStep {
	return &ReannotateStep{cache: cache, processed: processed, renderer: renderer}
}

// Name returns the step name.
func (s *ReannotateStep) Name() string {
	return "reannotate"
}

// Do renders cached results for processed keys on unchecked elements.
func (s *ReannotateStep) Do(_ context.Context, scan *Scan) error {
	if scan.Doc == nil {
		return ErrNoDocument
	}
	for _, t := range scan.Pass.Candidates {
		if t.Key.Empty() || !s.processed.Has(t.Key) {
			continue
		}
		result, ok := s.cache.Get(t.Key)
		if !ok {
			// Claimed by a pass still in flight; a later pass marks it.
			continue
		}
		if !scan.Doc.ClaimChecked(t.Node) {
			continue
		}
		if _, err := s.renderer.RenderImage(scan.Doc, t, result); err != nil {
			scan.Pass.AddError(err)
			continue
		}
		scan.Pass.Reannotated++
	}
	return nil
}

// ScoreStep claims and scores eligible targets concurrently.
type ScoreStep struct {
	scorer      detect.Scorer
	processed   *filter.ProcessedSet
	cache       *ResultCache
	thresholds  model.Thresholds
	concurrency int
}

// ScoreStepOption configures a ScoreStep.
type ScoreStepOption func(*ScoreStep)

// WithThresholds sets the classification thresholds.
func WithThresholds(t model.Thresholds) ScoreStepOption {
	return func(s *ScoreStep) {
		s.thresholds = t
	}
}

// WithScoreConcurrency sets the number of detection calls in flight.
func WithScoreConcurrency(n int) ScoreStepOption {
	return func(s *ScoreStep) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewScoreStep creates a ScoreStep.
func NewScoreStep(scorer detect.Scorer, processed *filter.ProcessedSet, cache *ResultCache, opts ...ScoreStepOption) *ScoreStep {
	s := &ScoreStep{
		scorer:      scorer,
		processed:   processed,
		cache:       cache,
		thresholds:  model.DefaultThresholds(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ScoreStep) Name() string {
	return "score"
}

// Do scores every eligible target whose key this pass manages to claim.
// The claim and the checked marker are set before the detection call
// starts. Results are appended in completion order.
func (s *ScoreStep) Do(ctx context.Context, scan *Scan) error {
	if scan.Doc == nil {
		return ErrNoDocument
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, t := range scan.Pass.Eligible {
		if !s.processed.MarkIfNew(t.Key) {
			continue
		}
		scan.Doc.MarkChecked(t.Node)

		g.Go(func() error {
			result := s.scorer.ScoreImage(gctx, t.URL)
			if result.Label == "" && t.Generator != "" {
				result.Label = t.Generator
			}
			s.cache.Put(t.Key, result)

			mu.Lock()
			scan.Pass.Results = append(scan.Pass.Results, model.ScoredTarget{
				Target:         t,
				Result:         result,
				Classification: s.thresholds.Classify(result.Score),
			})
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// AnnotateStep renders a badge for every scored target.
type AnnotateStep struct {
	renderer *annotate.Renderer
}

// NewAnnotateStep creates an AnnotateStep.
func NewAnnotateStep(renderer *annotate.Renderer) *AnnotateStep {
	return &AnnotateStep{renderer: renderer}
}

// Name returns the step name.
func (s *AnnotateStep) Name() string {
	return "annotate"
}

// Do renders results in completion order.
func (s *AnnotateStep) Do(_ context.Context, scan *Scan) error {
	if scan.Doc == nil {
		return ErrNoDocument
	}
	for _, r := range scan.Pass.Results {
		if _, err := s.renderer.RenderImage(scan.Doc, r.Target, r.Result); err != nil {
			scan.Pass.AddError(fmt.Errorf("annotate %s: %w", r.Target.URL, err))
		}
	}
	return nil
}

// RecordStep appends a history entry per result.
type RecordStep struct {
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecordStep creates a RecordStep.
func NewRecordStep(recorder Recorder, logger *slog.Logger) *RecordStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStep{recorder: recorder, logger: logger, now: time.Now}
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Do records every result. Storage failures are logged and kept in the pass.
func (s *RecordStep) Do(ctx context.Context, scan *Scan) error {
	for _, r := range scan.Pass.Results {
		entry := NewHistoryEntry(scan.Pass.PageURL, r.Target.URL, r.Classification, r.Result, s.now())
		if _, err := s.recorder.RecordScan(ctx, entry); err != nil {
			s.logger.Warn("failed to record scan result",
				"page", scan.Pass.PageURL,
				"url", r.Target.URL,
				"error", err,
			)
			scan.Pass.AddError(fmt.Errorf("record %s: %w", r.Target.URL, err))
		}
	}
	return nil
}

// NewHistoryEntry builds the history record for one verdict.
func NewHistoryEntry(pageURL, source string, c model.Classification, r model.ScoreResult, at time.Time) model.ScanHistoryEntry {
	media := r.Media
	if media == "" {
		media = model.MediaImage
	}
	return model.ScanHistoryEntry{
		ID:             uuid.NewString(),
		PageURL:        pageURL,
		Timestamp:      at.UTC(),
		Classification: c,
		Score:          r.Score,
		MediaType:      media,
		Source:         source,
	}
}
