package cmd

import (
	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/optimistic"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
	"github.com/marcus/hearth/internal/tui/board"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	Short:   "Live board of chat, tasks and groceries",
	Long:    `Opens a full-screen board that follows changes from the rest of the household as they happen.`,
	GroupID: "household",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		lists := []*optimistic.Controller{
			a.list(record.Messages, chatQuery(a, 200)),
			a.list(record.Tasks, remote.Query{Where: []remote.Cond{eq("done", "false")}}),
			a.list(record.Groceries, remote.Query{}),
		}
		for _, l := range lists {
			if err := l.Open(a.ctx); err != nil {
				return err
			}
		}

		m := board.NewModel(a.ctx, a.cfg.Member, lists[0], lists[1], lists[2])
		m.Channel = a.cfg.Channel
		m.Version = versionStr
		return board.Run(a.ctx, m)
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
