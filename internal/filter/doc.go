// Package filter decides which candidate images a scan pass scores.
//
// A target is eligible when its resource has not been scored on this page
// yet, it has a real URL (not a data: URI), it is at least MinDimension
// pixels in both directions and it would be visible to the reader.
// ProcessedSet records the keys already handed to the detection service;
// MarkIfNew is the single place a key is claimed.
package filter
