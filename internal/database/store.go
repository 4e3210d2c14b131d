package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fakebuster/fakebuster/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "fakebuster.db"

const (
	settingDetectionEnabled = "detectionEnabled"
	settingLastChecked      = "lastChecked"
)

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when the database file is missing and creation
// was not requested.
var ErrNotFound = errors.New("database not found")

// Store provides SQLite-based storage for settings, scan history and counters.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers do not block the writer.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the store in dbDir.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer connection. Other processes are serialized by SQLite's
	// file lock and wait for it through busy_timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scan_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		page_url TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		result TEXT NOT NULL,
		confidence REAL NOT NULL,
		media_type TEXT NOT NULL,
		source TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_history_timestamp ON scan_history(timestamp);
	CREATE INDEX IF NOT EXISTS idx_history_page ON scan_history(page_url);

	CREATE TABLE IF NOT EXISTS counters (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_scans INTEGER NOT NULL DEFAULT 0,
		fake_image_count INTEGER NOT NULL DEFAULT 0,
		fake_text_count INTEGER NOT NULL DEFAULT 0
	);

	INSERT OR IGNORE INTO counters (id) VALUES (1);

	-- Scan passes store complete pass records as JSON
	CREATE TABLE IF NOT EXISTS scan_passes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		page_url TEXT NOT NULL,
		trigger_source TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		pass_json TEXT NOT NULL,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_passes_page ON scan_passes(page_url);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordScan appends entry to the history and applies the matching counter
// increments in a single transaction. It returns the counters after the
// update.
func (s *Store) RecordScan(ctx context.Context, entry model.ScanHistoryEntry) (model.Counters, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Counters{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := entry.Timestamp.UTC()
	if entry.Timestamp.IsZero() {
		ts = time.Now().UTC()
	}
	stamp := ts.Format(timeLayout)

	_, err = tx.ExecContext(ctx, `
	INSERT INTO scan_history (id, page_url, timestamp, result, confidence, media_type, source)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.PageURL,
		stamp,
		entry.Classification.String(),
		entry.Score,
		string(entry.MediaType),
		entry.Source,
	)
	if err != nil {
		return model.Counters{}, fmt.Errorf("failed to insert history entry: %w", err)
	}

	delta := model.Counters{}.Apply(entry)
	_, err = tx.ExecContext(ctx, `
	UPDATE counters SET
		total_scans = total_scans + ?,
		fake_image_count = fake_image_count + ?,
		fake_text_count = fake_text_count + ?
	WHERE id = 1
	`, delta.TotalScans, delta.FakeImageCount, delta.FakeTextCount)
	if err != nil {
		return model.Counters{}, fmt.Errorf("failed to update counters: %w", err)
	}

	if err := putSetting(ctx, tx, settingLastChecked, stamp); err != nil {
		return model.Counters{}, err
	}

	counters, err := readCounters(ctx, tx)
	if err != nil {
		return model.Counters{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Counters{}, fmt.Errorf("failed to commit scan record: %w", err)
	}
	return counters, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func readCounters(ctx context.Context, q queryer) (model.Counters, error) {
	var c model.Counters
	err := q.QueryRowContext(ctx, `
	SELECT total_scans, fake_image_count, fake_text_count FROM counters WHERE id = 1
	`).Scan(&c.TotalScans, &c.FakeImageCount, &c.FakeTextCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Counters{}, nil
	}
	if err != nil {
		return model.Counters{}, fmt.Errorf("failed to read counters: %w", err)
	}
	return c, nil
}

// Counters returns the running totals.
func (s *Store) Counters(ctx context.Context) (model.Counters, error) {
	return readCounters(ctx, s.db)
}

// History returns up to limit entries, most recent first. A non-positive
// limit returns every entry.
func (s *Store) History(ctx context.Context, limit int) ([]model.ScanHistoryEntry, error) {
	query := `
	SELECT id, page_url, timestamp, result, confidence, media_type, source
	FROM scan_history
	ORDER BY timestamp DESC, seq DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]model.ScanHistoryEntry, 0)
	for rows.Next() {
		var (
			e         model.ScanHistoryEntry
			timestamp string
			result    string
			media     string
			source    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.PageURL, &timestamp, &result, &e.Score, &media, &source); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Timestamp = parseTimestamp(timestamp)
		e.Classification = model.Classification(result)
		e.MediaType = model.MediaType(media)
		e.Source = source.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// DetectionEnabled reports the persisted toggle. It defaults to true when
// the flag has never been written.
func (s *Store) DetectionEnabled(ctx context.Context) (bool, error) {
	v, ok, err := getSetting(ctx, s.db, settingDetectionEnabled)
	if err != nil || !ok {
		return true, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true, fmt.Errorf("invalid %s value %q: %w", settingDetectionEnabled, v, err)
	}
	return enabled, nil
}

// SetDetectionEnabled persists the toggle and stamps lastChecked.
func (s *Store) SetDetectionEnabled(ctx context.Context, enabled bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := putSetting(ctx, tx, settingDetectionEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	if err := putSetting(ctx, tx, settingLastChecked, time.Now().UTC().Format(timeLayout)); err != nil {
		return err
	}
	return tx.Commit()
}

// LastChecked returns when a scan was last recorded or the toggle last
// changed, or the zero time if neither happened.
func (s *Store) LastChecked(ctx context.Context) (time.Time, error) {
	v, ok, err := getSetting(ctx, s.db, settingLastChecked)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return parseTimestamp(v), nil
}

// Reset clears history, counters and saved passes. The detection toggle is
// kept.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		"DELETE FROM scan_history",
		"DELETE FROM scan_passes",
		"UPDATE counters SET total_scans = 0, fake_image_count = 0, fake_text_count = 0 WHERE id = 1",
		"DELETE FROM settings WHERE key = '" + settingLastChecked + "'",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}
	}
	return tx.Commit()
}

func getSetting(ctx context.Context, q queryer, key string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return v, true, nil
}

func putSetting(ctx context.Context, e execer, key, value string) error {
	_, err := e.ExecContext(ctx, `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// PassSummary is the metadata stored next to each saved pass.
type PassSummary struct {
	ID          int64
	PageURL     string
	Trigger     model.TriggerSource
	Timestamp   time.Time
	Counts      map[string]int
	Reannotated int
}

// SavePass stores a complete pass record as JSON.
func (s *Store) SavePass(ctx context.Context, pass *model.ScanPass) error {
	passJSON, err := json.Marshal(pass)
	if err != nil {
		return fmt.Errorf("failed to serialize pass: %w", err)
	}

	counts := make(map[string]int, 3)
	for c, n := range pass.CountByClassification() {
		counts[c.String()] = n
	}
	summaryJSON, _ := json.Marshal(counts) //nolint:errcheck,errchkjson // map[string]int always marshals

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO scan_passes (page_url, trigger_source, pass_json, summary)
	VALUES (?, ?, ?, ?)
	`,
		pass.PageURL,
		string(pass.Trigger),
		string(passJSON),
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save scan pass: %w", err)
	}
	return nil
}

// RecentPasses returns up to limit saved passes for pageURL, newest first.
func (s *Store) RecentPasses(ctx context.Context, pageURL string, limit int) ([]*model.ScanPass, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT pass_json FROM scan_passes
	WHERE page_url = ?
	ORDER BY id DESC
	LIMIT ?
	`, pageURL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan passes: %w", err)
	}
	defer rows.Close()

	var passes []*model.ScanPass
	for rows.Next() {
		var passJSON string
		if err := rows.Scan(&passJSON); err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		var pass model.ScanPass
		if err := json.Unmarshal([]byte(passJSON), &pass); err != nil {
			return nil, fmt.Errorf("failed to parse scan pass: %w", err)
		}
		passes = append(passes, &pass)
	}
	return passes, rows.Err()
}

// PassHistory returns summaries of the saved passes for pageURL, newest
// first. An empty pageURL lists every page.
func (s *Store) PassHistory(ctx context.Context, pageURL string) ([]PassSummary, error) {
	query := `
	SELECT id, page_url, trigger_source, timestamp, summary, pass_json
	FROM scan_passes
	WHERE 1=1
	`
	args := make([]any, 0, 1)
	if pageURL != "" {
		query += " AND page_url = ?"
		args = append(args, pageURL)
	}
	query += " ORDER BY id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan passes: %w", err)
	}
	defer rows.Close()

	var results []PassSummary
	for rows.Next() {
		var (
			ps          PassSummary
			trigger     string
			timestamp   string
			summaryJSON sql.NullString
			passJSON    string
		)
		if err := rows.Scan(&ps.ID, &ps.PageURL, &trigger, &timestamp, &summaryJSON, &passJSON); err != nil {
			return nil, fmt.Errorf("failed to scan pass summary: %w", err)
		}
		ps.Trigger = model.TriggerSource(trigger)
		ps.Timestamp = parseTimestamp(timestamp)

		ps.Counts = make(map[string]int)
		if summaryJSON.Valid && summaryJSON.String != "" {
			if err := json.Unmarshal([]byte(summaryJSON.String), &ps.Counts); err != nil {
				ps.Counts = make(map[string]int)
			}
		}

		var pass model.ScanPass
		if err := json.Unmarshal([]byte(passJSON), &pass); err == nil {
			ps.Reannotated = pass.Reannotated
		}
		results = append(results, ps)
	}

	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns the zero time when
// none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
