// Package scheduler implements the review scheduling state machine: the
// interval ladder, stage advancement, manual-schedule overrides and due-date
// queries.
package scheduler

import "time"

// Ladder is a fixed ascending sequence of review intervals in days.
// Stage s maps to Ladder[s]; any stage past the end maps to the final value,
// which acts as the steady-state maintenance interval for arbitrarily large
// stages.
type Ladder []int

// DefaultLadder is the standard interval progression.
var DefaultLadder = Ladder{1, 3, 7, 14, 30}

// Interval returns the review interval in days for the given stage.
// Negative stages are clamped to 0.
func (l Ladder) Interval(stage int) int {
	if stage < 0 {
		stage = 0
	}
	if stage >= len(l) {
		stage = len(l) - 1
	}
	return l[stage]
}

// NextDue computes the due time for a review at the given stage, counted from
// from. Pure: no side effects, negative stages clamp to 0.
func (l Ladder) NextDue(stage int, from time.Time) time.Time {
	return from.AddDate(0, 0, l.Interval(stage))
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
