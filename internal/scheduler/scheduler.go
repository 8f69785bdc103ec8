package scheduler

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kwlin/studyloop/internal/models"
	"github.com/kwlin/studyloop/internal/notify"
)

// TopicStore is the persistence surface the scheduler needs.
// *db.Repository satisfies it.
type TopicStore interface {
	CreateTopic(topic *models.Topic) error
	GetTopic(id string) (*models.Topic, error)
	UpdateTopic(topic *models.Topic) error
	DeleteTopic(id string) error
	QueryDueBetween(from, to time.Time) ([]*models.Topic, error)
	QueryDueBefore(t time.Time) ([]*models.Topic, error)
	QueryDueWindow(after, until time.Time) ([]*models.Topic, error)
}

// SyncRequester lets the scheduler enqueue a sync operation after a topic
// mutation. *db.Repository satisfies it.
type SyncRequester interface {
	EnqueueSync(kind string, payload json.RawMessage, priority int) (*models.SyncQueueItem, error)
}

// Scheduler advances topics through the interval ladder and answers due-date
// queries. One instance per process, constructed at startup and passed by
// handle to call sites.
type Scheduler struct {
	store    TopicStore
	syncq    SyncRequester
	notifier notify.Notifier
	log      *logrus.Logger
	ladder   Ladder
	now      func() time.Time

	// Optional hook fired every milestoneEvery reviews, used to kick a
	// higher-frequency incremental sync.
	onMilestone    func()
	milestoneEvery int
	reviewsSince   int
}

// New creates a Scheduler over the given store. syncq and notifier may be
// nil; the corresponding side effects are then skipped.
func New(store TopicStore, syncq SyncRequester, notifier notify.Notifier, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		syncq:    syncq,
		notifier: notifier,
		log:      log,
		ladder:   DefaultLadder,
		now:      time.Now,
	}
}

// SetReviewMilestone installs a hook invoked after every n reviews.
func (s *Scheduler) SetReviewMilestone(n int, hook func()) {
	s.milestoneEvery = n
	s.onMilestone = hook
}

// ComputeNextDue computes the due time for a review at the given stage.
// Negative stages are invalid input: they are clamped to 0 and logged, never
// propagated.
func (s *Scheduler) ComputeNextDue(stage int, from time.Time) time.Time {
	if stage < 0 {
		s.log.WithField("stage", stage).Warn("negative stage clamped to 0")
	}
	return s.ladder.NextDue(stage, from)
}

// CreateTopic persists a new topic at stage 0, due after the ladder's first
// interval.
func (s *Scheduler) CreateTopic(title, notes string) (*models.Topic, error) {
	now := s.now()
	topic := &models.Topic{
		Title:     title,
		Notes:     notes,
		Stage:     0,
		NextDueAt: s.ladder.NextDue(0, now).Unix(),
		CreatedAt: now.Unix(),
	}
	if err := s.store.CreateTopic(topic); err != nil {
		return nil, err
	}
	s.requestSync(models.OpUpdateTopic, topic.ID.String())
	return topic, nil
}

// ReviewOptions modifies MarkReviewed behavior.
type ReviewOptions struct {
	// ReturnToAutomatic releases a manual schedule and resumes automatic
	// due-date derivation as part of the review.
	ReturnToAutomatic bool
}

// MarkReviewed records a completed review.
//
// On an automatic schedule the stage advances by one and the due date is
// recomputed from now. While a manual schedule is active (and
// ReturnToAutomatic is unset) only the review bookkeeping changes: the
// user-set due date stays authoritative.
func (s *Scheduler) MarkReviewed(id string, opts ReviewOptions) (*models.Topic, error) {
	topic, err := s.store.GetTopic(id)
	if err != nil {
		return nil, err
	}

	now := s.now()

	if topic.ManualSchedule && !opts.ReturnToAutomatic {
		topic.LastReviewedAt = now.Unix()
		topic.ReviewCount++
	} else {
		if opts.ReturnToAutomatic {
			topic.ManualSchedule = false
			topic.ManualDueAt = 0
		}
		topic.Stage++
		topic.NextDueAt = s.ComputeNextDue(topic.Stage, now).Unix()
		topic.LastReviewedAt = now.Unix()
		topic.ReviewCount++
	}

	if err := s.store.UpdateTopic(topic); err != nil {
		return nil, err
	}

	s.scheduleReminder(topic)
	s.requestSync(models.OpUpdateTopic, id)
	s.countReview()

	return topic, nil
}

// ResetTopic sends a topic back to the start of the ladder.
//
// The re-entry point is a fixed "tomorrow", independent of the ladder's
// stage-0 interval.
func (s *Scheduler) ResetTopic(id string) (*models.Topic, error) {
	topic, err := s.store.GetTopic(id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	topic.Stage = 0
	topic.ReviewCount = 0
	topic.LastReviewedAt = 0
	topic.ManualSchedule = false
	topic.ManualDueAt = 0
	topic.NextDueAt = now.AddDate(0, 0, 1).Unix()

	if err := s.store.UpdateTopic(topic); err != nil {
		return nil, err
	}

	s.scheduleReminder(topic)
	s.requestSync(models.OpUpdateTopic, id)

	return topic, nil
}

// SetManualSchedule pins the topic's due date to a user-chosen time,
// suspending automatic derivation until the schedule is cleared.
func (s *Scheduler) SetManualSchedule(id string, when time.Time) (*models.Topic, error) {
	topic, err := s.store.GetTopic(id)
	if err != nil {
		return nil, err
	}

	topic.ManualSchedule = true
	topic.ManualDueAt = when.Unix()
	topic.NextDueAt = when.Unix()

	if err := s.store.UpdateTopic(topic); err != nil {
		return nil, err
	}

	s.scheduleReminder(topic)
	s.requestSync(models.OpUpdateTopic, id)

	return topic, nil
}

// ClearManualSchedule releases a manual schedule. When recalculate is true
// the due date is recomputed from the current stage and the last review time
// (or now, if the topic was never reviewed); otherwise it is left as-is.
func (s *Scheduler) ClearManualSchedule(id string, recalculate bool) (*models.Topic, error) {
	topic, err := s.store.GetTopic(id)
	if err != nil {
		return nil, err
	}

	topic.ManualSchedule = false
	topic.ManualDueAt = 0

	if recalculate {
		base := s.now()
		if topic.Reviewed() {
			base = topic.LastReviewedTime()
		}
		topic.NextDueAt = s.ComputeNextDue(topic.Stage, base).Unix()
	}

	if err := s.store.UpdateTopic(topic); err != nil {
		return nil, err
	}

	s.requestSync(models.OpUpdateTopic, id)

	return topic, nil
}

// DeleteTopic removes a topic and cancels its pending reminder. Queued sync
// operations referencing the topic stay in place; the next full backup
// supersedes them.
func (s *Scheduler) DeleteTopic(id string) error {
	if err := s.store.DeleteTopic(id); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.CancelReminder(id); err != nil {
			s.log.WithError(err).WithField("topic_id", id).
				Warn("failed to cancel reminder")
		}
	}
	s.requestSync(models.OpDeleteTopic, id)
	return nil
}

// GetDue returns topics due today and not yet reviewed, most overdue first.
// Topics overdue from before today are reported by GetOverdue instead, so the
// two sets partition cleanly.
func (s *Scheduler) GetDue(now time.Time) ([]*models.Topic, error) {
	return s.store.QueryDueBetween(startOfDay(now), now)
}

// GetUpcoming returns topics coming due within the window, soonest first.
func (s *Scheduler) GetUpcoming(now time.Time, windowDays int) ([]*models.Topic, error) {
	return s.store.QueryDueWindow(now, now.AddDate(0, 0, windowDays))
}

// GetOverdue returns topics whose due date passed before today, most overdue
// first.
func (s *Scheduler) GetOverdue(now time.Time) ([]*models.Topic, error) {
	return s.store.QueryDueBefore(startOfDay(now))
}

// scheduleReminder asks the notifier for a reminder at the topic's due time.
// Failures never roll back the store mutation that triggered them.
func (s *Scheduler) scheduleReminder(topic *models.Topic) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ScheduleReminder(topic.ID.String(), topic.NextDueTime()); err != nil {
		s.log.WithError(err).WithField("topic_id", topic.ID).
			Warn("failed to schedule reminder")
	}
}

// requestSync enqueues a sync operation for the mutated topic. Queue failures
// are logged, not propagated; the next full backup covers the change anyway.
func (s *Scheduler) requestSync(kind, topicID string) {
	if s.syncq == nil {
		return
	}
	if _, err := s.syncq.EnqueueSync(kind, models.EncodeTopicPayload(topicID), 0); err != nil {
		s.log.WithError(err).WithField("topic_id", topicID).
			Warn("failed to enqueue sync operation")
	}
}

func (s *Scheduler) countReview() {
	if s.onMilestone == nil || s.milestoneEvery <= 0 {
		return
	}
	s.reviewsSince++
	if s.reviewsSince >= s.milestoneEvery {
		s.reviewsSince = 0
		s.onMilestone()
	}
}
