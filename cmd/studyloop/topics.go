package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kwlin/studyloop/internal/models"
	"github.com/kwlin/studyloop/internal/scheduler"
)

const dueDateLayout = "2006-01-02"

func newAddCommand(a *app) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a new topic at the start of the review ladder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			topic, err := a.sched.CreateTopic(title, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q (%s), first review due %s\n",
				topic.Title, topic.ID, topic.NextDueTime().Format(dueDateLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes for the topic")
	return cmd
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			topics, err := a.repo.ListTopics()
			if err != nil {
				return err
			}
			if len(topics) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No topics yet. Add one with 'studyloop add'.")
				return nil
			}
			printTopics(cmd, topics)
			return nil
		},
	}
}

func newDueCommand(a *app) *cobra.Command {
	var windowDays int

	cmd := &cobra.Command{
		Use:   "due",
		Short: "Show overdue, due and upcoming reviews",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			out := cmd.OutOrStdout()

			overdue, err := a.sched.GetOverdue(now)
			if err != nil {
				return err
			}
			due, err := a.sched.GetDue(now)
			if err != nil {
				return err
			}
			upcoming, err := a.sched.GetUpcoming(now, windowDays)
			if err != nil {
				return err
			}

			if len(overdue) > 0 {
				fmt.Fprintf(out, "Overdue (%d):\n", len(overdue))
				printTopics(cmd, overdue)
			}
			if len(due) > 0 {
				fmt.Fprintf(out, "Due today (%d):\n", len(due))
				printTopics(cmd, due)
			}
			if len(upcoming) > 0 {
				fmt.Fprintf(out, "Next %d days (%d):\n", windowDays, len(upcoming))
				printTopics(cmd, upcoming)
			}
			if len(overdue)+len(due)+len(upcoming) == 0 {
				fmt.Fprintln(out, "Nothing due. All caught up.")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&windowDays, "days", 7, "upcoming window in days")
	return cmd
}

func newReviewCommand(a *app) *cobra.Command {
	var returnToAutomatic bool

	cmd := &cobra.Command{
		Use:   "review <topic-id>",
		Short: "Record a completed review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := a.sched.MarkReviewed(args[0], scheduler.ReviewOptions{
				ReturnToAutomatic: returnToAutomatic,
			})
			if err != nil {
				return err
			}
			if topic.ManualSchedule {
				fmt.Fprintf(cmd.OutOrStdout(), "Reviewed %q (review #%d), manual due date %s unchanged\n",
					topic.Title, topic.ReviewCount, topic.NextDueTime().Format(dueDateLayout))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Reviewed %q, stage %d, next due %s\n",
					topic.Title, topic.Stage, topic.NextDueTime().Format(dueDateLayout))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&returnToAutomatic, "auto", false, "release a manual schedule and resume automatic scheduling")
	return cmd
}

func newResetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <topic-id>",
		Short: "Send a topic back to the start of the ladder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := a.sched.ResetTopic(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %q to stage 0, next review %s\n",
				topic.Title, topic.NextDueTime().Format(dueDateLayout))
			return nil
		},
	}
}

func newScheduleCommand(a *app) *cobra.Command {
	var clear, recalculate bool

	cmd := &cobra.Command{
		Use:   "schedule <topic-id> [date]",
		Short: "Pin a topic to a manual due date, or clear the pin",
		Long: `Pin a topic's next review to a specific date (YYYY-MM-DD), suspending
automatic scheduling until the pin is cleared with --clear.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				topic, err := a.sched.ClearManualSchedule(args[0], recalculate)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared manual schedule for %q, next due %s\n",
					topic.Title, topic.NextDueTime().Format(dueDateLayout))
				return nil
			}

			if len(args) < 2 {
				return fmt.Errorf("a date is required unless --clear is set")
			}
			when, err := time.ParseInLocation(dueDateLayout, args[1], time.Local)
			if err != nil {
				return fmt.Errorf("invalid date %q: want YYYY-MM-DD", args[1])
			}
			topic, err := a.sched.SetManualSchedule(args[0], when)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pinned %q to %s\n",
				topic.Title, topic.NextDueTime().Format(dueDateLayout))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the manual schedule")
	cmd.Flags().BoolVar(&recalculate, "recalculate", false, "recompute the due date from the current stage when clearing")
	return cmd
}

func newRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <topic-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a topic",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sched.DeleteTopic(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

func printTopics(cmd *cobra.Command, topics []*models.Topic) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTAGE\tDUE\tREVIEWS\tSCHEDULE")
	for _, t := range topics {
		mode := "auto"
		if t.ManualSchedule {
			mode = "manual"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n",
			t.ID, t.Title, t.Stage, t.NextDueTime().Format(dueDateLayout), t.ReviewCount, mode)
	}
	w.Flush()
}
