// Package notify defines the reminder collaborator used by the review
// scheduler.
//
// Delivery mechanics are platform-specific and live outside the core; the
// scheduler only needs somewhere to hand "remind about topic X at time T"
// requests. Failures are always non-fatal for the store mutation that
// triggered them.
package notify

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier schedules and cancels per-topic review reminders.
type Notifier interface {
	ScheduleReminder(topicID string, when time.Time) error
	CancelReminder(topicID string) error
}

// LogNotifier records reminder requests in the structured log. It stands in
// for a real notification service on platforms without one.
type LogNotifier struct {
	log *logrus.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// ScheduleReminder logs the reminder request.
func (n *LogNotifier) ScheduleReminder(topicID string, when time.Time) error {
	n.log.WithFields(logrus.Fields{
		"topic_id": topicID,
		"when":     when.Format(time.RFC3339),
	}).Info("reminder scheduled")
	return nil
}

// CancelReminder logs the cancellation.
func (n *LogNotifier) CancelReminder(topicID string) error {
	n.log.WithField("topic_id", topicID).Info("reminder cancelled")
	return nil
}
