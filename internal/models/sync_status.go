// Package models provides data model definitions for the studyloop core.
package models

import "time"

// SyncStatus is the singleton record describing the sync engine state.
// It is created once on first read with epoch-zero timestamps and updated at
// the start and end of every sync attempt; it is never deleted.
//
// IsSyncing is the sole mutual-exclusion mechanism between overlapping sync
// passes: an invocation that finds it set returns "already syncing" instead of
// blocking.
type SyncStatus struct {
	LastSyncAttemptAt    int64 `db:"last_sync_attempt_at" json:"last_sync_attempt_at"`
	LastSuccessfulSyncAt int64 `db:"last_successful_sync_at" json:"last_successful_sync_at"`
	PendingCount         int   `db:"pending_count" json:"pending_count"`
	IsSyncing            bool  `db:"is_syncing" json:"is_syncing"`
}

// TableName returns the table name for SyncStatus.
func (SyncStatus) TableName() string {
	return "sync_status"
}

// LastSuccessfulSyncTime returns LastSuccessfulSyncAt as time.Time.
// The zero time is returned if no sync has ever succeeded.
func (s *SyncStatus) LastSuccessfulSyncTime() time.Time {
	if s.LastSuccessfulSyncAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.LastSuccessfulSyncAt, 0)
}
