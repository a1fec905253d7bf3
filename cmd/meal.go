package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/dateparse"
	"github.com/marcus/hearth/internal/output"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

var mealSlots = []string{"breakfast", "lunch", "dinner", "snack"}

var mealCmd = &cobra.Command{
	Use:     "meal",
	Aliases: []string{"meals"},
	Short:   "Plan the week's meals",
	GroupID: "household",
}

var mealPlanCmd = &cobra.Command{
	Use:   "plan <date> <slot> <dish...>",
	Short: "Plan a dish for a date and slot (replaces what was planned)",
	Example: `  hearth meal plan friday dinner pizza
  hearth meal plan 2026-05-01 lunch leftover soup`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		date, err := dateparse.ParseDate(args[0], a.now())
		if err != nil {
			return err
		}
		slot := strings.ToLower(args[1])
		if !slices.Contains(mealSlots, slot) {
			return fmt.Errorf("slot must be one of %s", strings.Join(mealSlots, ", "))
		}
		dish := strings.Join(args[2:], " ")

		meals, err := a.load(record.Meals, remote.Query{Where: []remote.Cond{eq("date", date), eq("slot", slot)}})
		if err != nil {
			return err
		}
		var rec record.Record
		if existing := meals.Items(); len(existing) > 0 {
			rec, err = meals.SubmitUpdate(a.ctx, existing[0].ID, map[string]any{"dish": dish})
		} else {
			rec, err = meals.SubmitCreate(a.ctx, map[string]any{"date": date, "slot": slot, "dish": dish})
		}
		if err != nil {
			return err
		}
		if a.json {
			return output.JSON(rec)
		}
		output.Success("planned %s", output.FormatMeal(record.MealFrom(rec)))
		return nil
	},
}

var mealListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show planned meals (this week by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		from, err := dateparse.ParseDate(fromStr, a.now())
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := dateparse.ParseDate(toStr, a.now())
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		meals, err := a.load(record.Meals, remote.Query{Where: []remote.Cond{
			{Field: "date", Op: remote.Gte, Value: from},
			{Field: "date", Op: remote.Lte, Value: to},
		}})
		if err != nil {
			return err
		}
		items := meals.Items()
		slices.SortStableFunc(items, func(x, y record.Record) int {
			if c := strings.Compare(x.String("date"), y.String("date")); c != 0 {
				return c
			}
			return slices.Index(mealSlots, x.String("slot")) - slices.Index(mealSlots, y.String("slot"))
		})
		return a.printRecords(items, "Nothing planned", func(r record.Record) string {
			return output.FormatMeal(record.MealFrom(r))
		})
	},
}

var mealRmCmd = &cobra.Command{
	Use:   "rm <date> <slot>",
	Short: "Clear a planned slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		date, err := dateparse.ParseDate(args[0], a.now())
		if err != nil {
			return err
		}
		meals, err := a.load(record.Meals, remote.Query{Where: []remote.Cond{eq("date", date), eq("slot", strings.ToLower(args[1]))}})
		if err != nil {
			return err
		}
		items := meals.Items()
		if len(items) == 0 {
			return fmt.Errorf("nothing planned for %s %s", date, args[1])
		}
		if err := meals.SubmitDelete(a.ctx, items[0].ID); err != nil {
			return err
		}
		output.Success("cleared %s %s", date, args[1])
		return nil
	},
}

func init() {
	mealListCmd.Flags().String("from", "today", "first day")
	mealListCmd.Flags().String("to", "+6d", "last day")

	mealCmd.AddCommand(mealPlanCmd, mealListCmd, mealRmCmd)
	rootCmd.AddCommand(mealCmd)
}
