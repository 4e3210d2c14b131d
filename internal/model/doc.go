// Package model defines the core data structures shared by FakeBuster.
//
// This package contains the following main types:
//   - ScanTarget: A DOM element under consideration during one scan pass
//   - ScoreResult: The detection service's verdict for one element
//   - Classification: The three-tier label derived from a score
//   - ScanHistoryEntry and Counters: The persisted record of completed scans
//   - ScanPass: The working record carried through a single scan pass
//
// Models live in their own package because the detection client, filter,
// renderer, store and reporting view all exchange them.
package model
