package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"time"
)

// Migration files live at the root of the source filesystem and are named
// YYYYMMDD_HHMMSS_description.up.sql (and the matching .down.sql).
const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var (
	sourceMu sync.RWMutex
	source   fs.FS
)

// SetMigrations installs the filesystem Migrate reads from. The migrations
// package calls it from init with its embedded files. The returned function
// restores the previous source, which tests use to swap in fixtures.
func SetMigrations(fsys fs.FS) (restore func()) {
	sourceMu.Lock()
	prev := source
	source = fsys
	sourceMu.Unlock()

	return func() {
		sourceMu.Lock()
		source = prev
		sourceMu.Unlock()
	}
}

// Migration is one versioned schema change.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	Up      string
	Down    string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   string
	AppliedAt time.Time
}

// MigrationStatus lists what has run and what is still to run.
type MigrationStatus struct {
	Applied []AppliedMigration
	Pending []Migration
}

// Migrate applies every pending migration, oldest first.
//
// Each migration commits in its own transaction. When one fails, the ones
// before it stay applied and a later Migrate resumes from the failed one.
func (db *DB) Migrate(ctx context.Context) error {
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	for _, m := range status.Pending {
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return fmt.Errorf("executing SQL: %w", err)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.Version, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration and returns its
// version, or "" when nothing has been applied.
func (db *DB) Rollback(ctx context.Context) (string, error) {
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", nil
	}
	latest := applied[len(applied)-1].Version

	all, err := loadMigrations()
	if err != nil {
		return "", err
	}
	i := slices.IndexFunc(all, func(m Migration) bool { return m.Version == latest })
	if i < 0 {
		return "", fmt.Errorf("migration %s not found in source", latest)
	}
	if all[i].Down == "" {
		return "", fmt.Errorf("migration %s has no down SQL", latest)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, all[i].Down); err != nil {
			return fmt.Errorf("executing down SQL: %w", err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", latest)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("rolling back %s: %w", latest, err)
	}
	return latest, nil
}

// MigrationStatus reports applied and pending migrations.
func (db *DB) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}
	all, err := loadMigrations()
	if err != nil {
		return MigrationStatus{}, err
	}

	done := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		done[a.Version] = struct{}{}
	}
	status := MigrationStatus{Applied: applied}
	for _, m := range all {
		if _, ok := done[m.Version]; !ok {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

// SchemaVersion returns the version of the most recently applied migration,
// or "" when none has been applied.
func (db *DB) SchemaVersion(ctx context.Context) (string, error) {
	if err := db.ensureMigrationTable(ctx); err != nil {
		return "", err
	}
	var version sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return "", fmt.Errorf("reading schema version: %w", err)
	}
	return version.String, nil
}

func (db *DB) ensureMigrationTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	if err := db.ensureMigrationTable(ctx); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		var at string
		if err := rows.Scan(&a.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return out, nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// loadMigrations reads the installed source, sorted by version. A missing
// source yields no migrations.
func loadMigrations() ([]Migration, error) {
	sourceMu.RLock()
	fsys := source
	sourceMu.RUnlock()
	if fsys == nil {
		return nil, nil
	}

	entries, err := fs.ReadDir(fsys, ".")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, up, ok := splitMigrationFile(e.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		// A lone down file is not a migration.
		if m.Up != "" {
			out = append(out, *m)
		}
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// splitMigrationFile parses "20260301_120000_appliance_state.up.sql" into
// ("20260301_120000", "appliance_state", true).
func splitMigrationFile(filename string) (version, name string, up, ok bool) {
	var base string
	switch {
	case strings.HasSuffix(filename, upSuffix):
		base, up = strings.TrimSuffix(filename, upSuffix), true
	case strings.HasSuffix(filename, downSuffix):
		base = strings.TrimSuffix(filename, downSuffix)
	default:
		return "", "", false, false
	}

	date, rest, found := strings.Cut(base, "_")
	if !found || len(date) != 8 {
		return "", "", false, false
	}
	clock, name, _ := strings.Cut(rest, "_")
	if len(clock) != 6 {
		return "", "", false, false
	}
	return date + "_" + clock, name, up, true
}
