// Package messaging defines the typed messages exchanged between the
// background, content and stats surfaces and the in-process Bus that
// carries them.
//
// On the wire every message is a flat JSON object tagged with an "action"
// field:
//
//	{"action":"detectImage","url":"https://example.com/a.jpg"}
//	{"action":"imageScore","score":0.82}
package messaging
