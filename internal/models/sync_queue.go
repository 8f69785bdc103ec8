// Package models provides data model definitions for the studyloop core.
package models

import "encoding/json"

// Sync operation kinds. Individual topic updates and deletes do not produce
// targeted remote deltas; every kind resolves to a full-state backup when the
// queue is drained. The kind is kept on the row for diagnostics and future
// targeted handling.
const (
	OpFullBackup  = "full_backup"
	OpUpdateTopic = "update_topic"
	OpDeleteTopic = "delete_topic"
)

// SyncQueueItem represents one pending sync operation.
//
// ID is assigned by the store (monotonic sequence) and provides FIFO ordering
// within a priority class: the queue is drained in (priority DESC,
// created_at ASC, id ASC) order.
type SyncQueueItem struct {
	ID         int64           `db:"id" json:"id"`
	Kind       string          `db:"kind" json:"kind"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	Priority   int             `db:"priority" json:"priority"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// TopicPayload is the payload shape for update_topic and delete_topic
// operations.
type TopicPayload struct {
	TopicID string `json:"topic_id"`
}

// EncodeTopicPayload marshals a TopicPayload for queueing.
func EncodeTopicPayload(topicID string) json.RawMessage {
	data, _ := json.Marshal(TopicPayload{TopicID: topicID})
	return data
}
