package homeconnect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// StateStore persists device state and snapshot history.
type StateStore interface {
	// LoadState returns the persisted blob, or ErrStateNotFound.
	LoadState(ctx context.Context, deviceID string) ([]byte, error)

	// SaveState replaces the persisted blob.
	SaveState(ctx context.Context, deviceID string, applianceType ApplianceType, data []byte) error

	// RecordSnapshot appends a snapshot to the device's history.
	RecordSnapshot(ctx context.Context, deviceID string, snapshot []byte) error
}

// HistoryEntry is one recorded snapshot.
type HistoryEntry struct {
	ID        int64           `json:"id"`
	DeviceID  string          `json:"device_id"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"created_at"`
}

// SQLiteStateStore implements StateStore on the appliance_state and
// appliance_snapshot_history tables.
//
// Thread Safety: All methods are safe for concurrent use.
type SQLiteStateStore struct {
	db *sql.DB

	upsertStmt *sql.Stmt
	stmtMu     sync.Mutex
}

// NewSQLiteStateStore creates a store. The schema must already be migrated.
func NewSQLiteStateStore(db *sql.DB) *SQLiteStateStore {
	return &SQLiteStateStore{db: db}
}

// Start prepares the state upsert statement.
func (s *SQLiteStateStore) Start() error {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	if s.upsertStmt != nil {
		return nil
	}
	stmt, err := s.db.Prepare(`
		INSERT INTO appliance_state (device_id, appliance_type, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			appliance_type = excluded.appliance_type,
			state = excluded.state,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing state upsert statement: %w", err)
	}
	s.upsertStmt = stmt
	return nil
}

// Close releases the prepared statement.
func (s *SQLiteStateStore) Close() error {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	if s.upsertStmt == nil {
		return nil
	}
	err := s.upsertStmt.Close()
	s.upsertStmt = nil
	return err
}

// LoadState implements StateStore.
func (s *SQLiteStateStore) LoadState(ctx context.Context, deviceID string) ([]byte, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM appliance_state WHERE device_id = ?", deviceID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying appliance state: %w", err)
	}
	return []byte(state), nil
}

// SaveState implements StateStore.
func (s *SQLiteStateStore) SaveState(ctx context.Context, deviceID string, applianceType ApplianceType, data []byte) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)

	s.stmtMu.Lock()
	stmt := s.upsertStmt
	s.stmtMu.Unlock()

	var err error
	if stmt != nil {
		_, err = stmt.ExecContext(ctx, deviceID, string(applianceType), string(data), now)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO appliance_state (device_id, appliance_type, state, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(device_id) DO UPDATE SET
				appliance_type = excluded.appliance_type,
				state = excluded.state,
				updated_at = excluded.updated_at`,
			deviceID, string(applianceType), string(data), now)
	}
	if err != nil {
		return fmt.Errorf("saving appliance state: %w", err)
	}
	return nil
}

// RecordSnapshot implements StateStore.
func (s *SQLiteStateStore) RecordSnapshot(ctx context.Context, deviceID string, snapshot []byte) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if !json.Valid(snapshot) {
		return fmt.Errorf("%w: snapshot is not valid JSON", ErrInvalidPayload)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO appliance_snapshot_history (device_id, snapshot, created_at) VALUES (?, ?, ?)",
		deviceID,
		string(snapshot),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot history: %w", err)
	}
	return nil
}

// History returns recorded snapshots for a device, newest first.
// limit defaults to 50 and is capped at 200.
func (s *SQLiteStateStore) History(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, snapshot, created_at
		 FROM appliance_snapshot_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var snapshot, createdAt string
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &snapshot, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot history: %w", err)
		}
		entry.Snapshot = json.RawMessage(snapshot)

		ts, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = ts
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes snapshots older than olderThan and returns the
// number removed.
func (s *SQLiteStateStore) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM appliance_snapshot_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting snapshot history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return ts, nil
	}
	if fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value); fallbackErr == nil {
		return fallback.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
