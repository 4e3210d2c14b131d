// Package surface wires the background and content roles of fakebuster
// onto a messaging.Bus.
//
// Background owns the detection client: it answers single image scoring
// requests and runs the text selection check. Content owns one page: it
// starts scans, applies the detection toggle, reports counters and shows
// text verdicts as tooltips.
package surface
