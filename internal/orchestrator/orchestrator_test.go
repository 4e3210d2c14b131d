package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/log"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/probe"
)

const pageHTML = `<html><body>
  <img src="https://cdn.example/photo.jpg" width="200" height="200" style="display:block">
  <img src="https://cdn.example/tiny.png" width="10" height="10">
</body></html>`

type countingScorer struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *countingScorer) ScoreImage(ctx context.Context, _ string) model.ScoreResult {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return model.ScoreResult{Score: 0.85, Media: model.MediaImage}
}

func (s *countingScorer) ScoreText(context.Context, string) model.TextVerdict {
	return model.TextVerdict{}
}

type fakeSettings struct {
	mu      sync.Mutex
	enabled bool
	err     error
}

func (f *fakeSettings) DetectionEnabled(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, f.err
}

func (f *fakeSettings) set(enabled bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled, f.err = enabled, err
}

type passLog struct {
	mu     sync.Mutex
	passes []*model.ScanPass
}

func (p *passLog) add(pass *model.ScanPass) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passes = append(p.passes, pass)
}

func (p *passLog) count(trigger model.TriggerSource) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pass := range p.passes {
		if pass.Trigger == trigger {
			n++
		}
	}
	return n
}

func newTestOrchestrator(t *testing.T, scorer *countingScorer, opts ...Option) (*Orchestrator, *passLog) {
	t.Helper()

	doc, err := dom.Parse(strings.NewReader(pageHTML), "https://news.example/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts = append([]Option{
		WithLogger(log.Discard()),
		WithDebounce(model.TriggerMutation, 20*time.Millisecond),
		WithDebounce(model.TriggerScroll, 40*time.Millisecond),
	}, opts...)

	o := New(dom.NewStaticSource(doc), scorer, opts...)
	t.Cleanup(o.Close)

	pl := &passLog{}
	o.OnPass(pl.add)
	return o, pl
}

func TestThreeTriggersScoreOnce(t *testing.T) {
	t.Parallel()

	scorer := &countingScorer{delay: 10 * time.Millisecond}
	o, passes := newTestOrchestrator(t, scorer)

	o.Trigger(model.TriggerLoad)
	o.Trigger(model.TriggerMutation)
	o.Trigger(model.TriggerScroll)
	o.Wait()

	if got := scorer.calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 detection call, got %d", got)
	}
	for _, tr := range []model.TriggerSource{model.TriggerLoad, model.TriggerMutation, model.TriggerScroll} {
		if passes.count(tr) != 1 {
			t.Errorf("expected one %s pass, got %d", tr, passes.count(tr))
		}
	}
	if o.Processed() != 1 {
		t.Errorf("expected 1 processed key, got %d", o.Processed())
	}
	if o.State() != Idle {
		t.Errorf("expected idle after Wait, got %s", o.State())
	}
}

func TestDebouncePerSource(t *testing.T) {
	t.Parallel()

	o, passes := newTestOrchestrator(t, &countingScorer{})

	for range 10 {
		o.Trigger(model.TriggerMutation)
		o.Trigger(model.TriggerScroll)
		time.Sleep(2 * time.Millisecond)
	}
	o.Wait()

	if n := passes.count(model.TriggerMutation); n != 1 {
		t.Errorf("expected 1 mutation pass, got %d", n)
	}
	if n := passes.count(model.TriggerScroll); n != 1 {
		t.Errorf("expected 1 scroll pass, got %d", n)
	}

	// A trigger after the timer fired schedules a new pass.
	o.Trigger(model.TriggerMutation)
	o.Wait()
	if n := passes.count(model.TriggerMutation); n != 2 {
		t.Errorf("expected 2 mutation passes, got %d", n)
	}
}

func TestDetectionToggle(t *testing.T) {
	t.Parallel()

	scorer := &countingScorer{}
	settings := &fakeSettings{enabled: false}
	o, _ := newTestOrchestrator(t, scorer, WithSettings(settings))

	pass, err := o.Scan(context.Background(), model.TriggerMessage)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !pass.Skipped || scorer.calls.Load() != 0 {
		t.Fatalf("expected skipped pass without detection, got %+v", pass)
	}

	// A failing read keeps the last known value.
	settings.set(true, errors.New("locked"))
	pass, _ = o.Scan(context.Background(), model.TriggerMessage)
	if !pass.Skipped {
		t.Error("expected last known disabled value to be used")
	}

	settings.set(true, nil)
	pass, _ = o.Scan(context.Background(), model.TriggerMessage)
	if pass.Skipped || len(pass.Results) != 1 {
		t.Errorf("expected one result once enabled, got %+v", pass)
	}

	settings.set(false, errors.New("locked"))
	pass, _ = o.Scan(context.Background(), model.TriggerMessage)
	if pass.Skipped {
		t.Error("expected last known enabled value to be used")
	}
}

func TestDetectionDefaultWithoutSettings(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, &countingScorer{}, WithDetectionDefault(false))
	pass, err := o.Scan(context.Background(), model.TriggerLoad)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !pass.Skipped {
		t.Error("expected pass to be skipped")
	}
}

func TestNavigateResetsProcessed(t *testing.T) {
	t.Parallel()

	scorer := &countingScorer{}
	doc, err := dom.Parse(strings.NewReader(pageHTML), "https://news.example/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	src := &swapSource{doc: doc}
	o := New(src, scorer, WithLogger(log.Discard()))
	defer o.Close()

	firstID := o.ID()
	if _, err := o.Scan(context.Background(), model.TriggerLoad); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	// Same resource on a freshly loaded document is re-annotated, not re-scored.
	src.reload(t)
	pass, _ := o.Scan(context.Background(), model.TriggerMutation)
	if scorer.calls.Load() != 1 || pass.Reannotated != 1 {
		t.Fatalf("expected re-annotation from cache, calls=%d reannotated=%d", scorer.calls.Load(), pass.Reannotated)
	}

	o.Navigate()
	if o.ID() == firstID {
		t.Error("expected a new lifetime id")
	}
	src.reload(t)
	if _, err := o.Scan(context.Background(), model.TriggerLoad); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if scorer.calls.Load() != 2 {
		t.Errorf("expected a new detection call after navigation, got %d", scorer.calls.Load())
	}
}

func TestCloseStopsTriggers(t *testing.T) {
	t.Parallel()

	scorer := &countingScorer{}
	o, passes := newTestOrchestrator(t, scorer)

	o.Trigger(model.TriggerScroll)
	o.Close()

	if passes.count(model.TriggerScroll) != 0 {
		t.Error("pending debounced pass must be cancelled by Close")
	}
	if _, err := o.Scan(context.Background(), model.TriggerLoad); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	o.Trigger(model.TriggerLoad)
	o.Wait()
	if scorer.calls.Load() != 0 {
		t.Error("no detection expected after Close")
	}
}

type tinyProber struct {
	calls atomic.Int32
}

func (p *tinyProber) Probe(context.Context, string) (probe.Info, error) {
	p.calls.Add(1)
	return probe.Info{Width: 10, Height: 10, Format: "png"}, nil
}

func TestNaturallyTinyImageIsNeverScored(t *testing.T) {
	t.Parallel()

	scorer := &countingScorer{}
	prober := &tinyProber{}
	o, _ := newTestOrchestrator(t, scorer, WithProber(prober))

	pass, err := o.Scan(context.Background(), model.TriggerLoad)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if prober.calls.Load() == 0 {
		t.Fatal("expected the declared 200x200 image to be probed")
	}
	if got := scorer.calls.Load(); got != 0 {
		t.Errorf("expected no detection call for 10x10 images, got %d", got)
	}
	if len(pass.Eligible) != 0 {
		t.Errorf("expected no eligible targets, got %d", len(pass.Eligible))
	}
	if pass.Rejected["too_small"] != 2 {
		t.Errorf("expected both images rejected as too small, got %v", pass.Rejected)
	}
}

func TestTriggerWhileWaiting(t *testing.T) {
	t.Parallel()

	scorer := &countingScorer{delay: 5 * time.Millisecond}
	o, passes := newTestOrchestrator(t, scorer)

	waited := make(chan struct{})
	go func() {
		defer close(waited)
		for range 20 {
			o.Wait()
		}
	}()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Trigger(model.TriggerMessage)
		}()
	}
	wg.Wait()
	o.Wait()

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return")
	}
	if n := passes.count(model.TriggerMessage); n != 8 {
		t.Errorf("expected 8 message passes, got %d", n)
	}
	if o.State() != Idle {
		t.Errorf("expected idle, got %s", o.State())
	}
}

// swapSource returns a freshly parsed document after reload.
type swapSource struct {
	mu  sync.Mutex
	doc *dom.Document
}

func (s *swapSource) URL() string { return "https://news.example/" }

func (s *swapSource) Snapshot(context.Context) (*dom.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, nil
}

func (s *swapSource) reload(t *testing.T) {
	t.Helper()

	doc, err := dom.Parse(strings.NewReader(pageHTML), s.URL())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
}
