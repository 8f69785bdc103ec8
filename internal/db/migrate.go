// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents one applied schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrations is the ordered list of schema changes. Entries are append-only;
// checksums of applied versions are verified on startup.
var migrations = []struct {
	version     int
	description string
	sql         string
}{
	{
		version:     1,
		description: "topics table",
		sql: `
		CREATE TABLE topics (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			stage INTEGER NOT NULL DEFAULT 0 CHECK(stage >= 0),
			next_due_at INTEGER NOT NULL CHECK(next_due_at > 0),
			last_reviewed_at INTEGER NOT NULL DEFAULT 0,
			review_count INTEGER NOT NULL DEFAULT 0 CHECK(review_count >= 0),
			manual_schedule INTEGER NOT NULL DEFAULT 0,
			manual_due_at INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			last_modified_at INTEGER NOT NULL
		);
		CREATE INDEX idx_topics_next_due ON topics(next_due_at);
		CREATE INDEX idx_topics_modified ON topics(last_modified_at);
		`,
	},
	{
		version:     2,
		description: "sync queue table",
		sql: `
		CREATE TABLE sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL CHECK(kind IN ('full_backup', 'update_topic', 'delete_topic')),
			payload TEXT,
			priority INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0 CHECK(retry_count >= 0),
			last_error TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX idx_sync_queue_order ON sync_queue(priority DESC, created_at ASC);
		`,
	},
	{
		version:     3,
		description: "sync status singleton",
		sql: `
		CREATE TABLE sync_status (
			id INTEGER PRIMARY KEY CHECK(id = 1),
			last_sync_attempt_at INTEGER NOT NULL DEFAULT 0,
			last_successful_sync_at INTEGER NOT NULL DEFAULT 0,
			pending_count INTEGER NOT NULL DEFAULT 0,
			is_syncing INTEGER NOT NULL DEFAULT 0
		);
		`,
	},
}

// Migrate brings the schema up to the latest version.
func Migrate(db *DB) error {
	if err := initMigrations(db.DB); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	current, err := currentVersion(db.DB)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			if err := verifyChecksum(db.DB, m.version, m.sql); err != nil {
				return err
			}
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		checksum := checksumOf(m.sql)
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			m.version, time.Now().Unix(), m.description, checksum,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// AppliedMigrations returns all applied migrations in version order.
func AppliedMigrations(db *DB) ([]Migration, error) {
	rows, err := db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var m Migration
		var appliedAt int64
		if err := rows.Scan(&m.Version, &appliedAt, &m.Description, &m.Checksum); err != nil {
			return nil, err
		}
		m.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, m)
	}
	return applied, rows.Err()
}

func initMigrations(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := db.Exec(query)
	return err
}

func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

func verifyChecksum(db *sql.DB, version int, sqlText string) error {
	var stored string
	err := db.QueryRow("SELECT checksum FROM schema_migrations WHERE version = ?", version).Scan(&stored)
	if err != nil {
		return fmt.Errorf("failed to read checksum for migration %d: %w", version, err)
	}
	if stored != checksumOf(sqlText) {
		return fmt.Errorf("migration %d was modified after being applied", version)
	}
	return nil
}

func checksumOf(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}
