package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action tags a message on the wire.
type Action string

const (
	ActionDetectImages       Action = "detectImages"
	ActionScanPage           Action = "scanPage"
	ActionDetectImage        Action = "detectImage"
	ActionImageScore         Action = "imageScore"
	ActionShowResult         Action = "showResult"
	ActionToggleDetection    Action = "toggleDetection"
	ActionGetDetectionCounts Action = "getDetectionCounts"
	ActionDetectionCounts    Action = "detectionCounts"
	ActionCheckText          Action = "checkText"
	ActionTextResult         Action = "textResult"
	ActionAck                Action = "ack"
	ActionError              Action = "error"
)

var (
	// ErrUnknownAction is returned when a message carries an action with no
	// registered type.
	ErrUnknownAction = errors.New("unknown action")

	// ErrMissingAction is returned when the action tag is absent.
	ErrMissingAction = errors.New("missing action")
)

// Message is implemented by every message variant.
type Message interface {
	Action() Action
}

// DetectImages asks the content surface to scan the page.
type DetectImages struct{}

// ScanPage is an alias of DetectImages sent by the popup.
type ScanPage struct{}

// DetectImage asks the background surface to score one image.
type DetectImage struct {
	URL string `json:"url"`
}

// ImageScore answers DetectImage.
type ImageScore struct {
	Score    float64 `json:"score"`
	Fallback bool    `json:"fallback,omitempty"`
}

// ShowResult delivers a text verdict to the content surface. Selector, when
// set, names the element the selection was made in.
type ShowResult struct {
	ResultText string `json:"resultText"`
	Selector   string `json:"selector,omitempty"`
}

// ToggleDetection turns automatic scanning on or off.
type ToggleDetection struct {
	Enabled bool `json:"enabled"`
}

// GetDetectionCounts asks for the running totals.
type GetDetectionCounts struct{}

// DetectionCounts answers GetDetectionCounts.
type DetectionCounts struct {
	TotalDetectionCount int64 `json:"totalDetectionCount"`
	TotalFakeImageCount int64 `json:"totalFakeImageCount"`
	TotalFakeTextCount  int64 `json:"totalFakeTextCount"`
}

// CheckText scores a text selection.
type CheckText struct {
	Text     string `json:"text"`
	PageURL  string `json:"pageUrl,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// TextResult answers CheckText.
type TextResult struct {
	ResultText string  `json:"resultText"`
	Percent    float64 `json:"percent"`
	Model      string  `json:"model,omitempty"`
}

// Ack acknowledges a command.
type Ack struct{}

// Error reports a failed request.
type Error struct {
	Message string `json:"message"`
}

func (DetectImages) Action() Action       { return ActionDetectImages }
func (ScanPage) Action() Action           { return ActionScanPage }
func (DetectImage) Action() Action        { return ActionDetectImage }
func (ImageScore) Action() Action         { return ActionImageScore }
func (ShowResult) Action() Action         { return ActionShowResult }
func (ToggleDetection) Action() Action    { return ActionToggleDetection }
func (GetDetectionCounts) Action() Action { return ActionGetDetectionCounts }
func (DetectionCounts) Action() Action    { return ActionDetectionCounts }
func (CheckText) Action() Action          { return ActionCheckText }
func (TextResult) Action() Action         { return ActionTextResult }
func (Ack) Action() Action                { return ActionAck }
func (Error) Action() Action              { return ActionError }

// registry maps each action to a decoder for its variant.
var registry = map[Action]func(json.RawMessage) (Message, error){
	ActionDetectImages:       decodeAs[DetectImages],
	ActionScanPage:           decodeAs[ScanPage],
	ActionDetectImage:        decodeAs[DetectImage],
	ActionImageScore:         decodeAs[ImageScore],
	ActionShowResult:         decodeAs[ShowResult],
	ActionToggleDetection:    decodeAs[ToggleDetection],
	ActionGetDetectionCounts: decodeAs[GetDetectionCounts],
	ActionDetectionCounts:    decodeAs[DetectionCounts],
	ActionCheckText:          decodeAs[CheckText],
	ActionTextResult:         decodeAs[TextResult],
	ActionAck:                decodeAs[Ack],
	ActionError:              decodeAs[Error],
}

func decodeAs[T Message](data json.RawMessage) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Known reports whether a is a registered action.
func Known(a Action) bool {
	_, ok := registry[a]
	return ok
}

// Encode returns the tagged JSON form of m.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: %w", ErrMissingAction)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Action(), err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Action(), err)
	}
	tag, err := json.Marshal(m.Action())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Action(), err)
	}
	fields["action"] = tag
	return json.Marshal(fields)
}

// Decode parses a tagged message.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if envelope.Action == "" {
		return nil, fmt.Errorf("decode message: %w", ErrMissingAction)
	}

	decode, ok := registry[envelope.Action]
	if !ok {
		return nil, fmt.Errorf("decode message: %w: %q", ErrUnknownAction, envelope.Action)
	}
	m, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", envelope.Action, err)
	}
	return m, nil
}
