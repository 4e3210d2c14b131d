// Package database provides the SQLite-backed history and stats store
// shared by every fakebuster surface.
//
// The store holds three tables:
//   - settings: the detection toggle and the last time a scan was recorded
//   - scan_history: one row per verdict, append-only
//   - counters: a single row with running totals
//
// RecordScan appends a history row and bumps the counters in one
// transaction, so concurrent writers never lose an update and the counters
// always agree with the history.
package database
