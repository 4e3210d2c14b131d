// Package main provides the entry point for the FakeBuster CLI.
//
// FakeBuster finds images and text on web pages, asks an external detection
// service how likely each one is AI-generated, and marks the page with the
// verdicts. Counts and history are kept in a local SQLite database.
//
// Usage:
//
//	fakebuster scan <url|file>...
//	fakebuster watch <url|file>
//	fakebuster check "some text"
//	fakebuster stats
//
// See --help for all available options.
package main

// main is the entry point for FakeBuster.
func main() {
	Execute()
}
