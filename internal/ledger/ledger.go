// Package ledger persists every run and its per-file outcomes to a pure-Go
// sqlite database: an operations table (read by the history CLI command)
// and a file_outcomes table (read back by CompletedSources).
package ledger

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"forensiccopy/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	destination_root TEXT NOT NULL,
	operation TEXT NOT NULL,
	hash_algorithm TEXT NOT NULL,
	success INTEGER NOT NULL,
	files_processed INTEGER NOT NULL,
	bytes_processed INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error_message TEXT
);
CREATE TABLE IF NOT EXISTS file_outcomes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation_id INTEGER NOT NULL REFERENCES operations(id),
	source_path TEXT NOT NULL,
	destination_path TEXT NOT NULL,
	bytes INTEGER NOT NULL,
	source_hash TEXT,
	dest_hash TEXT,
	verified INTEGER NOT NULL,
	operation_kind TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_file_outcomes_operation ON file_outcomes(operation_id);
CREATE INDEX IF NOT EXISTS idx_file_outcomes_source ON file_outcomes(source_path);
`

// Ledger wraps a sqlite-backed evidence database. It is safe for
// concurrent use: every method holds the ledger's mutex.
type Ledger struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (if needed) and migrates the database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// BeginOperation records the start of a run and returns its row id for
// subsequent RecordFile / FinishOperation calls.
func (l *Ledger) BeginOperation(destRoot string, opts model.Options) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(
		`INSERT INTO operations (started_at, destination_root, operation, hash_algorithm, success, files_processed, bytes_processed, duration_ms)
		 VALUES (?, ?, ?, ?, 0, 0, 0, 0)`,
		time.Now().Format(time.RFC3339), destRoot, sameDrivePolicyLabel(opts.SameDrivePolicy), opts.HashAlgorithm.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("record operation start: %w", err)
	}
	return res.LastInsertId()
}

// RecordFile appends one completed file outcome under operationID.
func (l *Ledger) RecordFile(operationID int64, fo model.FileOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	errMsg := ""
	if fo.Err != nil {
		errMsg = fo.Err.Error()
	}
	verified := 0
	if fo.Verified {
		verified = 1
	}
	_, err := l.db.Exec(
		`INSERT INTO file_outcomes (operation_id, source_path, destination_path, bytes, source_hash, dest_hash, verified, operation_kind, completed_at, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		operationID, fo.Source, fo.Destination, fo.Bytes, fo.SourceHash, fo.DestHash, verified, fo.Operation.String(), time.Now().Format(time.RFC3339), nullableString(errMsg),
	)
	if err != nil {
		return fmt.Errorf("record file outcome: %w", err)
	}
	return nil
}

// FinishOperation updates the operation row with its final aggregate
// numbers once Run returns.
func (l *Ledger) FinishOperation(operationID int64, outcome model.AggregateOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	success := 0
	if outcome.Success {
		success = 1
	}
	errMsg := ""
	if outcome.Err != nil {
		errMsg = outcome.Err.Error()
	}
	_, err := l.db.Exec(
		`UPDATE operations SET success = ?, files_processed = ?, bytes_processed = ?, duration_ms = ?, error_message = ? WHERE id = ?`,
		success, outcome.FilesProcessed, outcome.BytesProcessed, outcome.Duration.Milliseconds(), nullableString(errMsg), operationID,
	)
	if err != nil {
		return fmt.Errorf("finish operation: %w", err)
	}
	return nil
}

// CompletedSources returns the set of source paths already recorded with a
// verified outcome under operationID, letting a resumed run skip them
// instead of re-copying and re-hashing a file it already finished.
func (l *Ledger) CompletedSources(operationID int64) (map[string]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`SELECT source_path FROM file_outcomes WHERE operation_id = ? AND verified = 1 AND error_message IS NULL`, operationID)
	if err != nil {
		return nil, fmt.Errorf("query completed sources: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("scan completed source: %w", err)
		}
		done[src] = true
	}
	return done, rows.Err()
}

// OperationSummary is one row of history output.
type OperationSummary struct {
	ID              int64
	StartedAt       string
	DestinationRoot string
	Success         bool
	FilesProcessed  int64
	BytesProcessed  int64
	DurationMS      int64
	ErrorMessage    string
}

// RecentOperations returns up to limit operations, most recent first.
func (l *Ledger) RecentOperations(limit int) ([]OperationSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT id, started_at, destination_root, success, files_processed, bytes_processed, duration_ms, COALESCE(error_message, '')
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent operations: %w", err)
	}
	defer rows.Close()

	var out []OperationSummary
	for rows.Next() {
		var s OperationSummary
		var success int
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.DestinationRoot, &success, &s.FilesProcessed, &s.BytesProcessed, &s.DurationMS, &s.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan operation summary: %w", err)
		}
		s.Success = success == 1
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sameDrivePolicyLabel(p model.SameDrivePolicy) string {
	switch p {
	case model.AlwaysMove:
		return "always_move"
	case model.Ask:
		return "ask"
	default:
		return "always_copy"
	}
}
