package detect

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when a detection call is made without text or URL.
// No request is sent in that case.
var ErrEmptyInput = errors.New("detect: empty input")

// ErrInvalidBaseURL is returned by NewClient when the service URL is not an
// absolute http(s) URL.
var ErrInvalidBaseURL = errors.New("detect: service URL must be an absolute http(s) URL")

// TransportError reports that the service could not be reached or answered
// with a non-success status.
type TransportError struct {
	// Endpoint is the path that was called, e.g. "/detect-image".
	Endpoint string
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Err is the underlying network or context error, if any.
	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("detect: %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("detect: %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a response body that is not valid JSON or lacks a
// required field.
type ParseError struct {
	Endpoint string
	// Field names the missing field, if that was the problem.
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("detect: %s response missing %q", e.Endpoint, e.Field)
	}
	return fmt.Sprintf("detect: %s: malformed response: %v", e.Endpoint, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Outcome classifies a finished detection call for observers.
type Outcome string

// Detection call outcomes.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeParseError     Outcome = "parse_error"
	OutcomeSkipped        Outcome = "skipped"
)

// OutcomeOf maps an error returned by DetectText or DetectImage to an Outcome.
func OutcomeOf(err error) Outcome {
	var te *TransportError
	var pe *ParseError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrEmptyInput):
		return OutcomeSkipped
	case errors.As(err, &pe):
		return OutcomeParseError
	case errors.As(err, &te):
		return OutcomeTransportError
	default:
		return OutcomeTransportError
	}
}
