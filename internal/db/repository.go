// Package db provides CRUD repository operations for studyloop data models.
package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kwlin/studyloop/internal/errors"
	"github.com/kwlin/studyloop/internal/models"
)

// Repository provides persistence for topics, the sync queue and the sync
// status record. All mutating operations address individual rows so a sync
// pass reading the queue never races with a concurrent enqueue in a way that
// loses updates.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository instance.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

const topicColumns = `id, title, notes, stage, next_due_at, last_reviewed_at,
	review_count, manual_schedule, manual_due_at, created_at, last_modified_at`

// CreateTopic inserts a new topic. A missing ID is assigned; CreatedAt and
// LastModifiedAt are stamped.
func (r *Repository) CreateTopic(topic *models.Topic) error {
	if topic.ID == "" {
		topic.ID = models.UUID(uuid.New().String())
	}
	now := time.Now().Unix()
	if topic.CreatedAt == 0 {
		topic.CreatedAt = now
	}
	topic.LastModifiedAt = now

	if err := topic.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid topic", err)
	}

	query := `
	INSERT INTO topics (` + topicColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, topic.ID, topic.Title, topic.Notes, topic.Stage,
		topic.NextDueAt, topic.LastReviewedAt, topic.ReviewCount,
		topic.ManualSchedule, topic.ManualDueAt, topic.CreatedAt, topic.LastModifiedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to insert topic", err)
	}
	return nil
}

// GetTopic retrieves a topic by ID.
func (r *Repository) GetTopic(id string) (*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE id = ?`

	topic, err := scanTopic(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrTopicNotFound, "topic %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to get topic", err)
	}
	return topic, nil
}

// ListTopics returns all topics ordered by creation time.
func (r *Repository) ListTopics() ([]*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics ORDER BY created_at ASC, id ASC`
	return r.queryTopics(query)
}

// UpdateTopic persists a mutated topic and bumps LastModifiedAt.
func (r *Repository) UpdateTopic(topic *models.Topic) error {
	topic.Touch(time.Now())

	if err := topic.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid topic", err)
	}

	query := `
	UPDATE topics
	SET title = ?, notes = ?, stage = ?, next_due_at = ?, last_reviewed_at = ?,
		review_count = ?, manual_schedule = ?, manual_due_at = ?, last_modified_at = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, topic.Title, topic.Notes, topic.Stage,
		topic.NextDueAt, topic.LastReviewedAt, topic.ReviewCount,
		topic.ManualSchedule, topic.ManualDueAt, topic.LastModifiedAt, topic.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update topic", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrTopicNotFound, "topic %s not found", topic.ID)
	}
	return nil
}

// DeleteTopic removes a topic. Queued sync operations referencing it are left
// in place; the next full-state backup supersedes them.
func (r *Repository) DeleteTopic(id string) error {
	result, err := r.db.Exec(`DELETE FROM topics WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete topic", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrTopicNotFound, "topic %s not found", id)
	}
	return nil
}

// QueryDueBetween returns topics with from <= next_due_at <= to, most overdue
// first.
func (r *Repository) QueryDueBetween(from, to time.Time) ([]*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics
		WHERE next_due_at >= ? AND next_due_at <= ?
		ORDER BY next_due_at ASC, id ASC`
	return r.queryTopics(query, from.Unix(), to.Unix())
}

// QueryDueBefore returns topics with next_due_at < t, most overdue first.
func (r *Repository) QueryDueBefore(t time.Time) ([]*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics
		WHERE next_due_at < ?
		ORDER BY next_due_at ASC, id ASC`
	return r.queryTopics(query, t.Unix())
}

// QueryDueWindow returns topics with after < next_due_at <= until, soonest
// first.
func (r *Repository) QueryDueWindow(after, until time.Time) ([]*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics
		WHERE next_due_at > ? AND next_due_at <= ?
		ORDER BY next_due_at ASC, id ASC`
	return r.queryTopics(query, after.Unix(), until.Unix())
}

// QueryModifiedSince returns topics touched after t, either through a direct
// edit or a review.
func (r *Repository) QueryModifiedSince(t time.Time) ([]*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics
		WHERE last_modified_at > ? OR last_reviewed_at > ?
		ORDER BY last_modified_at ASC, id ASC`
	return r.queryTopics(query, t.Unix(), t.Unix())
}

func (r *Repository) queryTopics(query string, args ...interface{}) ([]*models.Topic, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "topic query failed", err)
	}
	defer rows.Close()

	var topics []*models.Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan topic", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "topic iteration failed", err)
	}
	return topics, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTopic(row rowScanner) (*models.Topic, error) {
	var topic models.Topic
	err := row.Scan(
		&topic.ID, &topic.Title, &topic.Notes, &topic.Stage, &topic.NextDueAt,
		&topic.LastReviewedAt, &topic.ReviewCount, &topic.ManualSchedule,
		&topic.ManualDueAt, &topic.CreatedAt, &topic.LastModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

// CountTopics returns the number of stored topics.
func (r *Repository) CountTopics() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM topics`).Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count topics", err)
	}
	return count, nil
}
