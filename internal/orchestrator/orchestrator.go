package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fakebuster/fakebuster/internal/annotate"
	"github.com/fakebuster/fakebuster/internal/detect"
	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/filter"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/pipeline"
)

const (
	// DefaultMutationDebounce is the quiet period after the last mutation
	// trigger before a pass starts.
	DefaultMutationDebounce = 500 * time.Millisecond

	// DefaultScrollDebounce is the quiet period after the last scroll trigger.
	DefaultScrollDebounce = time.Second

	// DefaultConcurrency bounds detection calls in flight per pass.
	DefaultConcurrency = 4
)

// ErrClosed is returned by Scan after Close.
var ErrClosed = errors.New("orchestrator closed")

// State is the orchestrator's coarse state.
type State int

const (
	// Idle means no pass is running.
	Idle State = iota
	// Scanning means at least one pass is in flight.
	Scanning
)

// String returns the state name.
func (s State) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

// Settings provides the persisted detection toggle. database.Store
// implements it.
type Settings interface {
	DetectionEnabled(ctx context.Context) (bool, error)
}

// Orchestrator runs scan passes for one page lifetime.
type Orchestrator struct {
	source   dom.Source
	scorer   detect.Scorer
	settings Settings
	recorder pipeline.Recorder
	prober   pipeline.ImageProber
	filter   *filter.Filter
	renderer *annotate.Renderer
	logger   *slog.Logger

	thresholds  model.Thresholds
	concurrency int
	debounce    map[model.TriggerSource]time.Duration

	processed *filter.ProcessedSet
	cache     *pipeline.ResultCache
	pipeline  *pipeline.Pipeline

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	idle   *sync.Cond
	id     string
	timers map[model.TriggerSource]*time.Timer
	// pending counts scheduled debounced passes and running passes. It is
	// guarded by mu, so triggers may arrive while Wait blocks.
	pending   int
	inflight  int
	closed    bool
	enabled   bool
	doc       *dom.Document
	observers []func(*model.ScanPass)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettings sets where the detection toggle is read before each pass.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) {
		o.settings = s
	}
}

// WithRecorder sets the history store. Without one, results are not recorded.
func WithRecorder(r pipeline.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithProber enables natural-size probing. Every unprocessed candidate is
// probed, so the minimum-size rule sees the real image size even when the
// markup declares a larger box.
func WithProber(p pipeline.ImageProber) Option {
	return func(o *Orchestrator) {
		o.prober = p
	}
}

// WithFilter replaces the default eligibility filter.
func WithFilter(f *filter.Filter) Option {
	return func(o *Orchestrator) {
		o.filter = f
	}
}

// WithRenderer replaces the default renderer.
func WithRenderer(r *annotate.Renderer) Option {
	return func(o *Orchestrator) {
		o.renderer = r
	}
}

// WithThresholds sets the classification thresholds.
func WithThresholds(t model.Thresholds) Option {
	return func(o *Orchestrator) {
		o.thresholds = t
	}
}

// WithConcurrency bounds detection and probe calls in flight per pass.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithDebounce sets the quiet period for a trigger source. A non-positive
// duration runs that source immediately.
func WithDebounce(source model.TriggerSource, d time.Duration) Option {
	return func(o *Orchestrator) {
		o.debounce[source] = d
	}
}

// WithDetectionDefault sets the toggle value used until the settings store
// has been read successfully.
func WithDetectionDefault(enabled bool) Option {
	return func(o *Orchestrator) {
		o.enabled = enabled
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an Orchestrator for the page behind source.
func New(source dom.Source, scorer detect.Scorer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:      source,
		scorer:      scorer,
		thresholds:  model.DefaultThresholds(),
		concurrency: DefaultConcurrency,
		debounce: map[model.TriggerSource]time.Duration{
			model.TriggerMutation: DefaultMutationDebounce,
			model.TriggerScroll:   DefaultScrollDebounce,
		},
		processed: filter.NewProcessedSet(),
		cache:     pipeline.NewResultCache(),
		id:        uuid.NewString(),
		timers:    make(map[model.TriggerSource]*time.Timer),
		enabled:   true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.filter == nil {
		o.filter = filter.New()
	}
	if o.renderer == nil {
		o.renderer = annotate.NewRenderer(
			annotate.WithThresholds(o.thresholds),
			annotate.WithLogger(o.logger),
		)
	}

	o.idle = sync.NewCond(&o.mu)
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.pipeline = o.buildPipeline()
	return o
}

func (o *Orchestrator) buildPipeline() *pipeline.Pipeline {
	p := pipeline.New(
		pipeline.WithLogger(o.logger),
		pipeline.WithContinueOnError(false),
	)
	p.AddStep(pipeline.NewCollectStep(o.source))
	if o.prober != nil {
		p.AddStep(pipeline.NewProbeStep(o.prober, o.processed, o.concurrency, o.logger))
	}
	p.AddSteps(
		pipeline.NewFilterStep(o.filter, o.processed, o.logger),
		pipeline.NewReannotateStep(o.cache, o.processed, o.renderer),
		pipeline.NewScoreStep(o.scorer, o.processed, o.cache,
			pipeline.WithThresholds(o.thresholds),
			pipeline.WithScoreConcurrency(o.concurrency),
		),
		pipeline.NewAnnotateStep(o.renderer),
	)
	if o.recorder != nil {
		p.AddStep(pipeline.NewRecordStep(o.recorder, o.logger))
	}
	return p
}

// ID returns the identifier of the current page lifetime.
func (o *Orchestrator) ID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.id
}

// URL returns the page being scanned.
func (o *Orchestrator) URL() string {
	return o.source.URL()
}

// Renderer returns the renderer used for this page.
func (o *Orchestrator) Renderer() *annotate.Renderer {
	return o.renderer
}

// Processed returns the number of keys scored in this page lifetime.
func (o *Orchestrator) Processed() int {
	return o.processed.Len()
}

// Document returns the document of the latest pass, loading the page when
// no pass has run yet. A loaded page is kept until the next pass replaces
// it, so later renders land on the same document.
func (o *Orchestrator) Document(ctx context.Context) (*dom.Document, error) {
	o.mu.Lock()
	doc := o.doc
	o.mu.Unlock()
	if doc != nil {
		return doc, nil
	}

	doc, err := o.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.doc == nil {
		o.doc = doc
	}
	return o.doc, nil
}

// State reports Scanning while any pass is in flight.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight > 0 {
		return Scanning
	}
	return Idle
}

// OnPass registers fn to be called after every pass, including skipped ones.
// fn runs on the scanning goroutine.
func (o *Orchestrator) OnPass(fn func(*model.ScanPass)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

// Trigger requests a pass. Load and message triggers start one now; other
// sources are debounced per source.
func (o *Orchestrator) Trigger(source model.TriggerSource) {
	d := o.debounce[source]
	if d <= 0 {
		o.runAsync(source)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	if t, ok := o.timers[source]; ok {
		if t.Reset(d) {
			// Still pending: the pass is pushed back and stays counted.
			return
		}
		o.pending++
		return
	}

	o.pending++
	o.timers[source] = time.AfterFunc(d, func() {
		defer o.done()
		o.logger.Debug("debounced trigger fired", "page", o.source.URL(), "trigger", string(source))
		_, _ = o.Scan(o.ctx, source) //nolint:errcheck // errors are kept in the pass
	})
}

func (o *Orchestrator) runAsync(source model.TriggerSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.pending++
	go func() {
		defer o.done()
		_, _ = o.Scan(o.ctx, source) //nolint:errcheck // errors are kept in the pass
	}()
}

// Scan runs one pass synchronously and returns its record. The returned
// error is ErrClosed or the error of the step that stopped the pass; it is
// also kept in the pass.
func (o *Orchestrator) Scan(ctx context.Context, trigger model.TriggerSource) (*model.ScanPass, error) {
	scan := pipeline.NewScan(o.source.URL(), trigger)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		scan.Pass.Skipped = true
		scan.Pass.AddError(ErrClosed)
		return scan.Pass, ErrClosed
	}
	o.inflight++
	o.pending++
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inflight--
		if scan.Doc != nil {
			o.doc = scan.Doc
		}
		observers := append([]func(*model.ScanPass){}, o.observers...)
		o.mu.Unlock()

		for _, fn := range observers {
			fn(scan.Pass)
		}
		o.done()
	}()

	if !o.detectionEnabled(ctx) {
		scan.Pass.Skipped = true
		scan.Pass.FinishedAt = time.Now()
		o.logger.Debug("detection disabled, skipping pass", "page", scan.Pass.PageURL, "trigger", string(trigger))
		return scan.Pass, nil
	}

	err := o.pipeline.Execute(ctx, scan)
	o.logger.Info("scan pass finished",
		"page", scan.Pass.PageURL,
		"trigger", string(trigger),
		"candidates", len(scan.Pass.Candidates),
		"scored", len(scan.Pass.Results),
		"reannotated", scan.Pass.Reannotated,
		"elapsed", scan.Pass.FinishedAt.Sub(scan.Pass.StartedAt),
	)
	return scan.Pass, err
}

// detectionEnabled reads the toggle, falling back to the last known value
// when the store cannot be read.
func (o *Orchestrator) detectionEnabled(ctx context.Context) bool {
	if o.settings == nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.enabled
	}

	enabled, err := o.settings.DetectionEnabled(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.logger.Warn("failed to read detection toggle, using last known value",
			"enabled", o.enabled,
			"error", err,
		)
		return o.enabled
	}
	o.enabled = enabled
	return enabled
}

// Navigate starts a new page lifetime: the processed set and result cache
// are cleared so every resource may be scored again.
func (o *Orchestrator) Navigate() {
	o.processed.Reset()
	o.cache.Reset()

	o.mu.Lock()
	o.id = uuid.NewString()
	id := o.id
	o.mu.Unlock()

	o.logger.Debug("page navigated", "page", o.source.URL(), "lifetime", id)
}

// Wait blocks until every pending debounced pass and every in-flight pass
// has finished.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.pending > 0 {
		o.idle.Wait()
	}
}

func (o *Orchestrator) done() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doneLocked()
}

func (o *Orchestrator) doneLocked() {
	o.pending--
	if o.pending == 0 {
		o.idle.Broadcast()
	}
}

// Close cancels pending debounced passes, waits for in-flight ones and
// dismisses open tooltips. Later triggers are ignored.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for source, t := range o.timers {
		if t.Stop() {
			o.doneLocked()
		}
		delete(o.timers, source)
	}
	o.mu.Unlock()

	o.Wait()
	o.cancel()
	o.renderer.Close()
}
