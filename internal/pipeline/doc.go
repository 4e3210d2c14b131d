// Package pipeline runs one scan pass over a page as a sequence of steps.
//
// A pass collects candidate images from the current document, fills in
// natural sizes the markup does not declare, filters out what is not worth
// scoring, scores the rest concurrently, annotates the page and records
// each result in the history store. Each stage is a Step that receives the
// shared Scan and extends it.
//
// BatchProcessor scans several pages concurrently with errgroup and a
// concurrency limit.
package pipeline
