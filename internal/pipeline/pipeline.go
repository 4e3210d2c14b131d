package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/fakebuster/fakebuster/internal/dom"
	"github.com/fakebuster/fakebuster/internal/model"
)

// Scan is the state shared by the steps of one pass.
type Scan struct {
	// Pass is the record returned to callers.
	Pass *model.ScanPass

	// Doc is the document being scanned, set by CollectStep.
	Doc *dom.Document
}

// NewScan creates the state for a pass over pageURL.
func NewScan(pageURL string, trigger model.TriggerSource) *Scan {
	return &Scan{Pass: model.NewScanPass(pageURL, trigger)}
}

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Do executes the step. Non-critical problems are recorded in the pass
	// and nil is returned; an error means the pass cannot continue.
	Do(ctx context.Context, scan *Scan) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing later steps after one fails.
// The error is still recorded in the pass.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence, checking for cancellation before
// each one. It returns the first step error unless continueOnError is set.
func (p *Pipeline) Execute(ctx context.Context, scan *Scan) error {
	pass := scan.Pass
	defer func() {
		pass.FinishedAt = time.Now()
	}()

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("scan pass cancelled",
				"step", step.Name(),
				"page", pass.PageURL,
				"reason", ctx.Err(),
			)
			pass.AddError(ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"page", pass.PageURL,
			"trigger", pass.Trigger,
		)

		if err := step.Do(ctx, scan); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"page", pass.PageURL,
				"error", err,
			)
			pass.AddError(err)
			if !p.continueOnError {
				return err
			}
		}

		pass.PerformedSteps = append(pass.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
