package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UUID is a string-backed topic identifier that knows how to travel through
// database/sql.
type UUID string

// String returns the identifier as a plain string.
func (u UUID) String() string {
	return string(u)
}

// Value implements driver.Valuer.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner. NULL scans to the empty UUID.
func (u *UUID) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", src)
	}
	return nil
}

// Topic is a learning item moving through the review ladder.
//
// All timestamps are unix seconds; zero means unset. When ManualSchedule is
// set, ManualDueAt mirrors NextDueAt so the effective due date has a single
// source of truth. When it is clear, ManualDueAt must be zero.
type Topic struct {
	ID             UUID   `db:"id" json:"id"`
	Title          string `db:"title" json:"title"`
	Notes          string `db:"notes" json:"notes,omitempty"`
	Stage          int    `db:"stage" json:"stage"`
	NextDueAt      int64  `db:"next_due_at" json:"next_due_at"`
	LastReviewedAt int64  `db:"last_reviewed_at" json:"last_reviewed_at,omitempty"`
	ReviewCount    int    `db:"review_count" json:"review_count"`
	ManualSchedule bool   `db:"manual_schedule" json:"manual_schedule,omitempty"`
	ManualDueAt    int64  `db:"manual_due_at" json:"manual_due_at,omitempty"`
	CreatedAt      int64  `db:"created_at" json:"created_at"`
	LastModifiedAt int64  `db:"last_modified_at" json:"last_modified_at"`
}

// TableName returns the table name for Topic.
func (Topic) TableName() string {
	return "topics"
}

// NextDueTime returns the effective due date as a time.Time.
func (t *Topic) NextDueTime() time.Time {
	return time.Unix(t.NextDueAt, 0)
}

// LastReviewedTime returns the last review time, or the zero time when the
// topic has never been reviewed.
func (t *Topic) LastReviewedTime() time.Time {
	if t.LastReviewedAt == 0 {
		return time.Time{}
	}
	return time.Unix(t.LastReviewedAt, 0)
}

// Reviewed reports whether the topic has been reviewed at least once.
func (t *Topic) Reviewed() bool {
	return t.LastReviewedAt != 0
}

// Touch stamps the modification time. Callers touch a topic on every mutation
// so the incremental sync watermark sees it.
func (t *Topic) Touch(at time.Time) {
	t.LastModifiedAt = at.Unix()
}

// Validate checks the structural invariants before a topic is persisted.
func (t *Topic) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("topic id is required")
	}
	if t.Stage < 0 {
		return fmt.Errorf("stage must not be negative, got %d", t.Stage)
	}
	if t.ReviewCount < 0 {
		return fmt.Errorf("review count must not be negative, got %d", t.ReviewCount)
	}
	if t.NextDueAt == 0 {
		return fmt.Errorf("topic %s has no due date", t.ID)
	}
	if t.ManualSchedule && t.ManualDueAt != t.NextDueAt {
		return fmt.Errorf("topic %s: manual due date %d does not mirror next_due_at %d", t.ID, t.ManualDueAt, t.NextDueAt)
	}
	if !t.ManualSchedule && t.ManualDueAt != 0 {
		return fmt.Errorf("topic %s: manual due date set without manual schedule", t.ID)
	}
	return nil
}
