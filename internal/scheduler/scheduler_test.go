package scheduler

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/kwlin/studyloop/internal/db"
	apperrors "github.com/kwlin/studyloop/internal/errors"
	"github.com/kwlin/studyloop/internal/logging"
	"github.com/kwlin/studyloop/internal/models"
)

type recordingNotifier struct {
	scheduled map[string]time.Time
	cancelled []string
	fail      bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{scheduled: make(map[string]time.Time)}
}

func (n *recordingNotifier) ScheduleReminder(topicID string, when time.Time) error {
	if n.fail {
		return fmt.Errorf("notification service unavailable")
	}
	n.scheduled[topicID] = when
	return nil
}

func (n *recordingNotifier) CancelReminder(topicID string) error {
	n.cancelled = append(n.cancelled, topicID)
	return nil
}

func setupScheduler(t *testing.T) (*Scheduler, *db.Repository, *recordingNotifier) {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := db.NewRepository(database)
	notifier := newRecordingNotifier()
	s := New(repo, repo, notifier, logging.Discard())
	return s, repo, notifier
}

func fixClock(s *Scheduler, at time.Time) {
	s.now = func() time.Time { return at }
}

func TestCreateTopicStartsAtStageZero(t *testing.T) {
	s, _, _ := setupScheduler(t)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fixClock(s, now)

	topic, err := s.CreateTopic("TCP congestion control", "")
	if err != nil {
		t.Fatalf("CreateTopic failed: %v", err)
	}

	if topic.Stage != 0 {
		t.Errorf("expected stage 0, got %d", topic.Stage)
	}
	if topic.NextDueAt != now.AddDate(0, 0, 1).Unix() {
		t.Errorf("expected first due after the ladder's first interval")
	}
}

func TestMarkReviewedAutomatic(t *testing.T) {
	s, repo, notifier := setupScheduler(t)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fixClock(s, now)

	topic, err := s.CreateTopic("B-trees", "")
	if err != nil {
		t.Fatal(err)
	}

	for wantStage := 1; wantStage <= 7; wantStage++ {
		got, err := s.MarkReviewed(topic.ID.String(), ReviewOptions{})
		if err != nil {
			t.Fatalf("MarkReviewed failed at stage %d: %v", wantStage, err)
		}
		if got.Stage != wantStage {
			t.Errorf("expected stage %d, got %d", wantStage, got.Stage)
		}
		if got.ReviewCount != wantStage {
			t.Errorf("expected review count %d, got %d", wantStage, got.ReviewCount)
		}
		wantDue := DefaultLadder.NextDue(wantStage, now).Unix()
		if got.NextDueAt != wantDue {
			t.Errorf("stage %d: expected due %d, got %d", wantStage, wantDue, got.NextDueAt)
		}
		if got.LastReviewedAt != now.Unix() {
			t.Errorf("expected last_reviewed_at to be now")
		}
	}

	// Reminder follows the latest due date.
	if when, ok := notifier.scheduled[topic.ID.String()]; !ok {
		t.Error("expected a reminder to be scheduled")
	} else if when.Unix() != DefaultLadder.NextDue(7, now).Unix() {
		t.Errorf("reminder not aligned with due date: %v", when)
	}

	// Each review enqueued a sync operation.
	size, err := repo.QueueSize()
	if err != nil {
		t.Fatal(err)
	}
	if size != 8 { // 1 create + 7 reviews
		t.Errorf("expected 8 queued operations, got %d", size)
	}
}

func TestMarkReviewedManualScheduleIsAuthoritative(t *testing.T) {
	s, _, _ := setupScheduler(t)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fixClock(s, now)

	topic, err := s.CreateTopic("Raft leader election", "")
	if err != nil {
		t.Fatal(err)
	}

	pinned := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.SetManualSchedule(topic.ID.String(), pinned); err != nil {
		t.Fatal(err)
	}

	got, err := s.MarkReviewed(topic.ID.String(), ReviewOptions{})
	if err != nil {
		t.Fatalf("MarkReviewed failed: %v", err)
	}

	if got.Stage != 0 {
		t.Errorf("manual review must not advance the stage, got %d", got.Stage)
	}
	if got.NextDueAt != pinned.Unix() {
		t.Errorf("manual due date must stay authoritative, got %d", got.NextDueAt)
	}
	if got.ReviewCount != 1 {
		t.Errorf("review count must still advance, got %d", got.ReviewCount)
	}
	if got.LastReviewedAt != now.Unix() {
		t.Error("expected last_reviewed_at to be recorded")
	}
}

func TestMarkReviewedReturnToAutomatic(t *testing.T) {
	s, _, _ := setupScheduler(t)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fixClock(s, now)

	topic, err := s.CreateTopic("Memory barriers", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetManualSchedule(topic.ID.String(), now.AddDate(0, 2, 0)); err != nil {
		t.Fatal(err)
	}

	got, err := s.MarkReviewed(topic.ID.String(), ReviewOptions{ReturnToAutomatic: true})
	if err != nil {
		t.Fatal(err)
	}

	if got.ManualSchedule || got.ManualDueAt != 0 {
		t.Error("expected manual schedule to be released")
	}
	if got.Stage != 1 {
		t.Errorf("expected automatic advancement to stage 1, got %d", got.Stage)
	}
	if got.NextDueAt != DefaultLadder.NextDue(1, now).Unix() {
		t.Error("expected due date recomputed from the ladder")
	}
}

func TestMarkReviewedNotFound(t *testing.T) {
	s, _, _ := setupScheduler(t)

	_, err := s.MarkReviewed("missing", ReviewOptions{})
	if !stderrors.Is(err, apperrors.New(apperrors.ErrTopicNotFound, "")) {
		t.Errorf("expected TOPIC_NOT_FOUND, got %v", err)
	}
}

func TestResetTopic(t *testing.T) {
	s, _, _ := setupScheduler(t)
	now := time.Date(2024, 6, 10, 22, 30, 0, 0, time.UTC)
	fixClock(s, now)

	topic, err := s.CreateTopic("Bloom filters", "")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.MarkReviewed(topic.ID.String(), ReviewOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.SetManualSchedule(topic.ID.String(), now.AddDate(0, 1, 0)); err != nil {
		t.Fatal(err)
	}

	got, err := s.ResetTopic(topic.ID.String())
	if err != nil {
		t.Fatalf("ResetTopic failed: %v", err)
	}

	if got.Stage != 0 || got.ReviewCount != 0 {
		t.Errorf("expected full reset, got stage %d count %d", got.Stage, got.ReviewCount)
	}
	if got.Reviewed() {
		t.Error("expected last_reviewed_at cleared")
	}
	if got.ManualSchedule || got.ManualDueAt != 0 {
		t.Error("expected manual schedule cleared")
	}

	// Fixed "tomorrow" re-entry, independent of the ladder's stage-0 value.
	due := got.NextDueTime().In(time.UTC)
	tomorrow := now.AddDate(0, 0, 1)
	if due.Year() != tomorrow.Year() || due.YearDay() != tomorrow.YearDay() {
		t.Errorf("expected due tomorrow (%v), got %v", tomorrow, due)
	}
}

func TestResetTopicNotFound(t *testing.T) {
	s, _, _ := setupScheduler(t)

	_, err := s.ResetTopic("missing")
	if !stderrors.Is(err, apperrors.New(apperrors.ErrTopicNotFound, "")) {
		t.Errorf("expected TOPIC_NOT_FOUND, got %v", err)
	}
}

func TestSetManualScheduleMirrorsDueDate(t *testing.T) {
	s, _, notifier := setupScheduler(t)
	fixClock(s, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))

	topic, err := s.CreateTopic("Paxos", "")
	if err != nil {
		t.Fatal(err)
	}

	when := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	got, err := s.SetManualSchedule(topic.ID.String(), when)
	if err != nil {
		t.Fatalf("SetManualSchedule failed: %v", err)
	}

	if !got.ManualSchedule {
		t.Error("expected manual schedule flag set")
	}
	if got.ManualDueAt != got.NextDueAt || got.NextDueAt != when.Unix() {
		t.Errorf("manual_due_at must mirror next_due_at: %d vs %d", got.ManualDueAt, got.NextDueAt)
	}
	if notifier.scheduled[topic.ID.String()].Unix() != when.Unix() {
		t.Error("expected reminder at the pinned time")
	}
}

func TestClearManualSchedule(t *testing.T) {
	s, _, _ := setupScheduler(t)
	now := time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)
	fixClock(s, now)

	topic, err := s.CreateTopic("Write barriers", "")
	if err != nil {
		t.Fatal(err)
	}
	reviewed, err := s.MarkReviewed(topic.ID.String(), ReviewOptions{}) // stage 1
	if err != nil {
		t.Fatal(err)
	}
	pinned := now.AddDate(0, 3, 0)
	if _, err := s.SetManualSchedule(topic.ID.String(), pinned); err != nil {
		t.Fatal(err)
	}

	// Without recalculation the pinned date survives, only the flag clears.
	got, err := s.ClearManualSchedule(topic.ID.String(), false)
	if err != nil {
		t.Fatal(err)
	}
	if got.ManualSchedule || got.ManualDueAt != 0 {
		t.Error("expected manual fields cleared")
	}
	if got.NextDueAt != pinned.Unix() {
		t.Error("expected due date untouched without recalculation")
	}

	// With recalculation the ladder takes over from the last review.
	if _, err := s.SetManualSchedule(topic.ID.String(), pinned); err != nil {
		t.Fatal(err)
	}
	got, err = s.ClearManualSchedule(topic.ID.String(), true)
	if err != nil {
		t.Fatal(err)
	}
	wantDue := DefaultLadder.NextDue(reviewed.Stage, time.Unix(reviewed.LastReviewedAt, 0)).Unix()
	if got.NextDueAt != wantDue {
		t.Errorf("expected recalculated due %d, got %d", wantDue, got.NextDueAt)
	}
}

func TestDuePartitionsAreDisjointAndComplete(t *testing.T) {
	s, repo, _ := setupScheduler(t)
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	fixClock(s, now)

	windowDays := 7
	dues := map[string]time.Time{
		"overdue":    now.AddDate(0, 0, -3),
		"due-today":  now.Add(-time.Hour),
		"upcoming":   now.AddDate(0, 0, 2),
		"far-future": now.AddDate(0, 0, 20),
	}
	for name, due := range dues {
		topic := &models.Topic{Title: name, NextDueAt: due.Unix()}
		if err := repo.CreateTopic(topic); err != nil {
			t.Fatal(err)
		}
	}

	overdue, err := s.GetOverdue(now)
	if err != nil {
		t.Fatal(err)
	}
	due, err := s.GetDue(now)
	if err != nil {
		t.Fatal(err)
	}
	upcoming, err := s.GetUpcoming(now, windowDays)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]int{}
	for _, topic := range overdue {
		seen[topic.Title]++
	}
	for _, topic := range due {
		seen[topic.Title]++
	}
	for _, topic := range upcoming {
		seen[topic.Title]++
	}

	for _, name := range []string{"overdue", "due-today", "upcoming"} {
		if seen[name] != 1 {
			t.Errorf("topic %q appeared %d times across partitions, expected exactly once", name, seen[name])
		}
	}
	if seen["far-future"] != 0 {
		t.Error("topic beyond the window must not appear in any partition")
	}
}

func TestNotifierFailureDoesNotFailReview(t *testing.T) {
	s, _, notifier := setupScheduler(t)
	fixClock(s, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	notifier.fail = true

	topic, err := s.CreateTopic("Cache coherence", "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.MarkReviewed(topic.ID.String(), ReviewOptions{})
	if err != nil {
		t.Fatalf("review must survive notifier failure: %v", err)
	}
	if got.Stage != 1 {
		t.Errorf("expected the review to be recorded, got stage %d", got.Stage)
	}
}

func TestDeleteTopicCancelsReminderAndQueuesSync(t *testing.T) {
	s, repo, notifier := setupScheduler(t)
	fixClock(s, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))

	topic, err := s.CreateTopic("CRDTs", "")
	if err != nil {
		t.Fatal(err)
	}
	queuedBefore, err := repo.QueueSize()
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteTopic(topic.ID.String()); err != nil {
		t.Fatalf("DeleteTopic failed: %v", err)
	}

	if _, err := repo.GetTopic(topic.ID.String()); !apperrors.NotFound(err) {
		t.Errorf("expected topic gone, got %v", err)
	}
	if len(notifier.cancelled) != 1 || notifier.cancelled[0] != topic.ID.String() {
		t.Errorf("expected reminder cancellation for %s, got %v", topic.ID, notifier.cancelled)
	}

	queuedAfter, err := repo.QueueSize()
	if err != nil {
		t.Fatal(err)
	}
	if queuedAfter != queuedBefore+1 {
		t.Errorf("expected a delete operation queued, queue went %d -> %d", queuedBefore, queuedAfter)
	}
}

func TestDeleteTopicNotFound(t *testing.T) {
	s, _, _ := setupScheduler(t)

	err := s.DeleteTopic("no-such-topic")
	if !stderrors.Is(err, apperrors.New(apperrors.ErrTopicNotFound, "")) {
		t.Errorf("expected topic-not-found error, got %v", err)
	}
}

func TestReviewMilestoneHook(t *testing.T) {
	s, _, _ := setupScheduler(t)
	fixClock(s, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))

	fired := 0
	s.SetReviewMilestone(5, func() { fired++ })

	topic, err := s.CreateTopic("Vector clocks", "")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 12; i++ {
		if _, err := s.MarkReviewed(topic.ID.String(), ReviewOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	if fired != 2 {
		t.Errorf("expected milestone hook after every 5 reviews (2 firings), got %d", fired)
	}
}
