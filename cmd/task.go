package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/dateparse"
	"github.com/marcus/hearth/internal/output"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"tasks", "t"},
	Short:   "Manage household tasks and chores",
	GroupID: "household",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title...>",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fields := map[string]any{"title": strings.Join(args, " "), "done": false}
		if assignee, _ := cmd.Flags().GetString("assignee"); assignee != "" {
			fields["assignee_id"] = strings.ToLower(assignee)
		}
		if due, _ := cmd.Flags().GetString("due"); due != "" {
			d, err := dateparse.ParseDate(due, a.now())
			if err != nil {
				return fmt.Errorf("--due: %w", err)
			}
			fields["due"] = d
		}

		rec, err := a.list(record.Tasks, remote.Query{}).SubmitCreate(a.ctx, fields)
		if err != nil {
			return err
		}
		if a.json {
			return output.JSON(rec)
		}
		output.Success("added %s", output.FormatTask(record.TaskFrom(rec), false))
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List open tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		q := remote.Query{}
		if all, _ := cmd.Flags().GetBool("all"); !all {
			q.Where = append(q.Where, eq("done", "false"))
		}
		if mine, _ := cmd.Flags().GetBool("mine"); mine {
			q.Where = append(q.Where, eq("assignee_id", a.cfg.Member))
		}
		tasks, err := a.load(record.Tasks, q)
		if err != nil {
			return err
		}
		doneToday, err := completedToday(a)
		if err != nil {
			return err
		}
		return a.printRecords(tasks.Items(), "No tasks", func(r record.Record) string {
			return output.FormatTask(record.TaskFrom(r), doneToday[r.ID])
		})
	},
}

// completedToday returns the ids of tasks with a completion for today.
func completedToday(a *app) (map[string]bool, error) {
	today, _ := dateparse.ParseDate("today", a.now())
	completions, err := a.load(record.Completions, remote.Query{Where: []remote.Cond{eq("date", today)}})
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, r := range completions.Items() {
		out[record.CompletionFrom(r).TaskID] = true
	}
	return out, nil
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done, or record today's completion of a chore",
	Long: `Marks a task done. With --today the task stays open and a completion is
recorded for today instead, for chores that come back every day.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		tasks, err := a.load(record.Tasks, remote.Query{})
		if err != nil {
			return err
		}
		task, err := findByPrefix(tasks.Items(), args[0])
		if err != nil {
			return err
		}

		if chore, _ := cmd.Flags().GetBool("today"); chore {
			today, _ := dateparse.ParseDate("today", a.now())
			_, err := a.list(record.Completions, remote.Query{}).SubmitCreate(a.ctx, map[string]any{
				"task_id": task.ID,
				"date":    today,
			})
			if remote.CodeOf(err) == remote.CodeUniqueViolation {
				output.Warning("%q was already done today", task.String("title"))
				return nil
			}
			if err != nil {
				return err
			}
			output.Success("%q done for %s", task.String("title"), today)
			return nil
		}

		if _, err := tasks.SubmitUpdate(a.ctx, task.ID, map[string]any{"done": true}); err != nil {
			return err
		}
		output.Success("done: %s", task.String("title"))
		return nil
	},
}

var taskReopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Reopen a finished task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		tasks, err := a.load(record.Tasks, remote.Query{})
		if err != nil {
			return err
		}
		task, err := findByPrefix(tasks.Items(), args[0])
		if err != nil {
			return err
		}
		if _, err := tasks.SubmitUpdate(a.ctx, task.ID, map[string]any{"done": false}); err != nil {
			return err
		}
		output.Success("reopened: %s", task.String("title"))
		return nil
	},
}

var taskRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		tasks, err := a.load(record.Tasks, remote.Query{})
		if err != nil {
			return err
		}
		task, err := findByPrefix(tasks.Items(), args[0])
		if err != nil {
			return err
		}
		if err := tasks.SubmitDelete(a.ctx, task.ID); err != nil {
			return err
		}
		output.Success("deleted: %s", task.String("title"))
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringP("assignee", "a", "", "member responsible")
	taskAddCmd.Flags().StringP("due", "d", "", "due date (today, friday, +3d, 2026-05-01)")
	taskListCmd.Flags().Bool("all", false, "include finished tasks")
	taskListCmd.Flags().Bool("mine", false, "only tasks assigned to me")
	taskDoneCmd.Flags().Bool("today", false, "record today's completion instead of closing the task")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskReopenCmd, taskRmCmd)
	rootCmd.AddCommand(taskCmd)
}
