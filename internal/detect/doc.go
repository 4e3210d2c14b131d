// Package detect is the client for the external synthetic-media detection
// service.
//
// The service exposes two endpoints:
//
//	POST /detect-text   {"text_str": "..."}   -> {"result": "...", "LLM": "..."}
//	POST /detect-image  {"image_url": "..."}  -> {"deepfake_score": 0.87}
//
// Every call is a single attempt bounded by a timeout. DetectText and
// DetectImage return a *TransportError or *ParseError on failure;
// ScoreText and ScoreImage convert any failure into the neutral fallback
// score so that a broken or slow service never stops a page scan.
package detect
