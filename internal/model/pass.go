package model

import (
	"time"
)

// ScanPass is the working record for one trigger of the scan pipeline.
// Steps read and extend it in order; it is owned by a single pass.
type ScanPass struct {
	// PageURL is the page being scanned.
	PageURL string `json:"page_url"`

	// Trigger is the event that started this pass.
	Trigger TriggerSource `json:"trigger"`

	// StartedAt and FinishedAt bracket the pass.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// Candidates are all elements returned by the DOM query.
	Candidates []ScanTarget `json:"-"`

	// Eligible are the candidates that survived the filter.
	Eligible []ScanTarget `json:"-"`

	// Rejected counts filtered candidates by reason.
	Rejected map[string]int `json:"rejected,omitempty"`

	// Results are the scored elements, in completion order.
	Results []ScoredTarget `json:"results"`

	// Reannotated counts elements marked again from an earlier result
	// without a new detection call.
	Reannotated int `json:"reannotated,omitempty"`

	// Skipped is true when detection was disabled for this pass.
	Skipped bool `json:"skipped,omitempty"`

	// Errors collects non-fatal problems (storage failures, fetch errors).
	Errors []string `json:"errors,omitempty"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`
}

// ScoredTarget pairs an element with its verdict.
type ScoredTarget struct {
	Target         ScanTarget     `json:"target"`
	Result         ScoreResult    `json:"result"`
	Classification Classification `json:"classification"`
}

// NewScanPass creates an empty pass for a page and trigger.
func NewScanPass(pageURL string, trigger TriggerSource) *ScanPass {
	return &ScanPass{
		PageURL:   pageURL,
		Trigger:   trigger,
		StartedAt: time.Now(),
		Rejected:  make(map[string]int),
		Results:   make([]ScoredTarget, 0),
	}
}

// AddError records a non-fatal error message.
func (p *ScanPass) AddError(err error) {
	if err == nil {
		return
	}
	p.Errors = append(p.Errors, err.Error())
}

// CountByClassification tallies results per classification.
func (p *ScanPass) CountByClassification() map[Classification]int {
	counts := make(map[Classification]int, 3)
	for _, r := range p.Results {
		counts[r.Classification]++
	}
	return counts
}
