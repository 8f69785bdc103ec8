// Package db: durable sync queue and sync status persistence.
package db

import (
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/kwlin/studyloop/internal/errors"
	"github.com/kwlin/studyloop/internal/models"
)

// EnqueueSync appends a sync operation to the queue and returns the stored
// row with its assigned sequence number.
func (r *Repository) EnqueueSync(kind string, payload json.RawMessage, priority int) (*models.SyncQueueItem, error) {
	item := &models.SyncQueueItem{
		Kind:      kind,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: time.Now().Unix(),
	}

	result, err := r.db.Exec(
		`INSERT INTO sync_queue (kind, payload, priority, retry_count, created_at) VALUES (?, ?, ?, 0, ?)`,
		item.Kind, nullableBytes(item.Payload), item.Priority, item.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to enqueue sync operation", err)
	}

	item.ID, err = result.LastInsertId()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read queue id", err)
	}
	return item, nil
}

// PeekPending returns up to limit queue items in processing order:
// priority descending, then age ascending, then insertion order.
// Items are not removed; callers Remove or IncrementRetry per outcome.
func (r *Repository) PeekPending(limit int) ([]*models.SyncQueueItem, error) {
	rows, err := r.db.Query(
		`SELECT id, kind, payload, priority, retry_count, last_error, created_at
		 FROM sync_queue
		 ORDER BY priority DESC, created_at ASC, id ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read sync queue", err)
	}
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		var payload, lastError sql.NullString
		if err := rows.Scan(&item.ID, &item.Kind, &payload, &item.Priority,
			&item.RetryCount, &lastError, &item.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan queue item", err)
		}
		if payload.Valid {
			item.Payload = json.RawMessage(payload.String)
		}
		if lastError.Valid {
			item.LastError = lastError.String
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "queue iteration failed", err)
	}
	return items, nil
}

// RemoveSyncItem deletes a queue row after successful processing.
func (r *Repository) RemoveSyncItem(id int64) error {
	_, err := r.db.Exec(`DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to remove queue item", err)
	}
	return nil
}

// IncrementRetry records a failed attempt on a queue row.
func (r *Repository) IncrementRetry(id int64, errMsg string) error {
	_, err := r.db.Exec(
		`UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`,
		errMsg, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to record retry", err)
	}
	return nil
}

// EvictExceeding drops queue items whose retry count reached maxRetries.
// Returns the number of abandoned operations.
func (r *Repository) EvictExceeding(maxRetries int) (int, error) {
	result, err := r.db.Exec(`DELETE FROM sync_queue WHERE retry_count >= ?`, maxRetries)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to evict queue items", err)
	}
	dropped, _ := result.RowsAffected()
	return int(dropped), nil
}

// QueueSize returns the number of pending sync operations.
func (r *Repository) QueueSize() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count sync queue", err)
	}
	return count, nil
}

// ReadSyncStatus returns the singleton status record, creating it with
// epoch-zero defaults on first read.
func (r *Repository) ReadSyncStatus() (*models.SyncStatus, error) {
	var status models.SyncStatus
	err := r.db.QueryRow(
		`SELECT last_sync_attempt_at, last_successful_sync_at, pending_count, is_syncing
		 FROM sync_status WHERE id = 1`).Scan(
		&status.LastSyncAttemptAt, &status.LastSuccessfulSyncAt,
		&status.PendingCount, &status.IsSyncing)
	if err == sql.ErrNoRows {
		if _, err := r.db.Exec(`INSERT INTO sync_status (id) VALUES (1)`); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to initialize sync status", err)
		}
		return &models.SyncStatus{}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read sync status", err)
	}
	return &status, nil
}

// WriteSyncStatus overwrites the singleton status record.
func (r *Repository) WriteSyncStatus(status *models.SyncStatus) error {
	_, err := r.db.Exec(
		`INSERT INTO sync_status (id, last_sync_attempt_at, last_successful_sync_at, pending_count, is_syncing)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			last_sync_attempt_at = excluded.last_sync_attempt_at,
			last_successful_sync_at = excluded.last_successful_sync_at,
			pending_count = excluded.pending_count,
			is_syncing = excluded.is_syncing`,
		status.LastSyncAttemptAt, status.LastSuccessfulSyncAt,
		status.PendingCount, status.IsSyncing)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write sync status", err)
	}
	return nil
}

// LastSuccessfulSync returns when the last successful sync pass finished,
// or the zero time if none has completed.
func (r *Repository) LastSuccessfulSync() (time.Time, error) {
	status, err := r.ReadSyncStatus()
	if err != nil {
		return time.Time{}, err
	}
	return status.LastSuccessfulSyncTime(), nil
}

func nullableBytes(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
