package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/input"
	"github.com/marcus/hearth/internal/output"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"msg"},
	Short:   "Read and write the family chat",
	GroupID: "household",
}

func chatQuery(a *app, limit int) remote.Query {
	return remote.Query{
		Where:   []remote.Cond{eq("channel", a.cfg.Channel)},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   limit,
	}
}

var chatSendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send a message to the household",
	Long:  `Sends a message. A single "-" reads the message from stdin and "@file" from a file.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		text, err := input.Text(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if text == "" {
			return fmt.Errorf("empty message")
		}
		msgType, _ := cmd.Flags().GetString("type")
		fields := record.NewMessageFields(msgType, text)
		fields["channel"] = a.cfg.Channel

		chat := a.list(record.Messages, chatQuery(a, 1))
		rec, err := chat.SubmitCreate(a.ctx, fields)
		if err != nil {
			return err
		}
		if a.json {
			return output.JSON(rec)
		}
		output.Success("sent %s", output.ShortID(rec.ID))
		return nil
	},
}

var chatListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show recent messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		markdown, _ := cmd.Flags().GetBool("markdown")
		chat, err := a.load(record.Messages, chatQuery(a, limit))
		if err != nil {
			return err
		}

		width := output.TerminalWidth(80)
		now := a.now()
		return a.printRecords(chat.Items(), "No messages yet", func(r record.Record) string {
			m := record.MessageFrom(r)
			body := m.Content
			if markdown && output.IsTerminal() {
				body = strings.TrimSpace(output.RenderMarkdown(body, width-2))
			}
			return output.FormatMessage(m, body, now)
		})
	},
}

var membersCmd = &cobra.Command{
	Use:     "members",
	Short:   "List household members",
	GroupID: "household",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		members, err := a.client.Members(a.ctx)
		if err != nil {
			return err
		}
		if a.json {
			return output.JSON(members)
		}
		for _, m := range members {
			marker := "  "
			if m.Name == a.cfg.Member {
				marker = "* "
			}
			fmt.Println(marker + output.Member(m.Name))
		}
		return nil
	},
}

func init() {
	chatSendCmd.Flags().StringP("type", "t", "text", "message type (text, image, system)")
	chatListCmd.Flags().IntP("limit", "n", 30, "number of messages to show")
	chatListCmd.Flags().BoolP("markdown", "m", false, "render messages as markdown")

	chatCmd.AddCommand(chatSendCmd, chatListCmd)
	rootCmd.AddCommand(chatCmd, membersCmd)
}
