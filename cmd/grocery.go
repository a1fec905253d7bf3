package cmd

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/input"
	"github.com/marcus/hearth/internal/output"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

var groceryCmd = &cobra.Command{
	Use:     "grocery",
	Aliases: []string{"groceries", "shop", "g"},
	Short:   "Manage the shopping list",
	GroupID: "household",
}

var groceryAddCmd = &cobra.Command{
	Use:   "add <name...>",
	Short: "Put an item on the list",
	Long: `Puts an item on the list. "-" reads one item per line from stdin and
"@file" from a file.`,
	Example: `  hearth grocery add oat milk --qty 2
  hearth grocery add @weekly.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		names := []string{strings.Join(args, " ")}
		if slices.ContainsFunc(args, func(s string) bool { return s == "-" || strings.HasPrefix(s, "@") }) {
			if names, err = input.Lines(args, cmd.InOrStdin()); err != nil {
				return err
			}
		}
		qty, _ := cmd.Flags().GetString("qty")

		list := a.list(record.Groceries, remote.Query{})
		var added []record.Record
		for _, name := range names {
			fields := map[string]any{"name": name, "checked": false}
			if qty != "" {
				fields["quantity"] = qty
			}
			rec, err := list.SubmitCreate(a.ctx, fields)
			if err != nil {
				return err
			}
			added = append(added, rec)
		}
		if a.json {
			return output.JSON(added)
		}
		for _, rec := range added {
			output.Success("added %s", output.FormatGrocery(record.GroceryFrom(rec)))
		}
		return nil
	},
}

var groceryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show the shopping list",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		q := remote.Query{}
		if open, _ := cmd.Flags().GetBool("open"); open {
			q.Where = []remote.Cond{eq("checked", "false")}
		}
		list, err := a.load(record.Groceries, q)
		if err != nil {
			return err
		}
		return a.printRecords(list.Items(), "The shopping list is empty", func(r record.Record) string {
			return output.FormatGrocery(record.GroceryFrom(r))
		})
	},
}

var groceryCheckCmd = &cobra.Command{
	Use:   "check <id>",
	Short: "Tick an item off (again to untick)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.load(record.Groceries, remote.Query{})
		if err != nil {
			return err
		}
		item, err := findByPrefix(list.Items(), args[0])
		if err != nil {
			return err
		}
		updated, err := list.SubmitUpdate(a.ctx, item.ID, map[string]any{"checked": !item.Bool("checked")})
		if err != nil {
			return err
		}
		output.Success("%s", output.FormatGrocery(record.GroceryFrom(updated)))
		return nil
	},
}

var groceryRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Remove an item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.load(record.Groceries, remote.Query{})
		if err != nil {
			return err
		}
		item, err := findByPrefix(list.Items(), args[0])
		if err != nil {
			return err
		}
		if err := list.SubmitDelete(a.ctx, item.ID); err != nil {
			return err
		}
		output.Success("removed %s", item.String("name"))
		return nil
	},
}

var groceryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every checked item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.load(record.Groceries, remote.Query{Where: []remote.Cond{eq("checked", "true")}})
		if err != nil {
			return err
		}
		removed := 0
		for _, item := range list.Items() {
			if err := list.SubmitDelete(a.ctx, item.ID); err != nil {
				return err
			}
			removed++
		}
		output.Success("cleared %d checked item(s)", removed)
		return nil
	},
}

func init() {
	groceryAddCmd.Flags().StringP("qty", "q", "", "quantity, e.g. 2 or 500g")
	groceryListCmd.Flags().Bool("open", false, "hide checked items")

	groceryCmd.AddCommand(groceryAddCmd, groceryListCmd, groceryCheckCmd, groceryRmCmd, groceryClearCmd)
	rootCmd.AddCommand(groceryCmd)
}
