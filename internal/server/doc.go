// Package server exposes the message bus over HTTP so that external
// surfaces (a browser extension, scripts) can talk to a running
// fakebuster process.
//
// Routes:
//
//	POST /v1/messages  tagged JSON message in, tagged JSON reply out
//	GET  /healthz      liveness
//	GET  /metrics      Prometheus exposition
//
// Failures are returned as an "error" message with a matching HTTP status.
package server
