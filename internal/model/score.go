package model

// FallbackScore is the neutral score substituted for any detection failure.
const FallbackScore = 0.5

// ScoreResult is the detection service's verdict for one element.
// It is immutable once produced.
type ScoreResult struct {
	// Score is the likelihood of synthetic origin in [0,1].
	Score float64 `json:"score"`

	// Label is an optional model or generator name.
	Label string `json:"label,omitempty"`

	// Fallback is true when the neutral default replaced a failed call.
	Fallback bool `json:"fallback,omitempty"`

	// Media is the endpoint that produced the score.
	Media MediaType `json:"media"`
}

// NewFallbackResult returns the neutral result for the given media type.
func NewFallbackResult(media MediaType) ScoreResult {
	return ScoreResult{Score: FallbackScore, Fallback: true, Media: media}
}

// Percent returns the score as a rounded percentage.
func (r ScoreResult) Percent() int {
	return int(r.Score*100 + 0.5)
}

// TextVerdict is the outcome of the text path: the percentage parsed from
// the service's free-text result and the text delivered to the page.
type TextVerdict struct {
	// Percent is the leading number before "%" in the service result, or 0.
	Percent float64 `json:"percent"`

	// ResultText is the message shown next to the selection.
	ResultText string `json:"result_text"`

	// Model is the model name reported by the service.
	Model string `json:"model,omitempty"`

	// Score is Percent normalized to [0,1].
	Score ScoreResult `json:"score"`
}
