package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/output"
)

var pushCmd = &cobra.Command{
	Use:     "push",
	Short:   "Manage push notification endpoints",
	GroupID: "system",
}

var pushRegisterCmd = &cobra.Command{
	Use:   "register <url>",
	Short: "Deliver my notifications to a webhook URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(args[0])
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint must be an http(s) URL: %q", args[0])
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		secret, _ := cmd.Flags().GetString("secret")
		ep, err := a.client.RegisterEndpoint(a.ctx, args[0], secret)
		if err != nil {
			return err
		}
		if a.json {
			return output.JSON(ep)
		}
		output.Success("registered %s (%s)", ep.URL, ep.ID)
		if secret != "" {
			output.Info("Deliveries are signed with X-Hearth-Signature.")
		}
		return nil
	},
}

var pushListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List my endpoints",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		eps, err := a.client.Endpoints(a.ctx)
		if err != nil {
			return err
		}
		if a.json {
			return output.JSON(eps)
		}
		if len(eps) == 0 {
			fmt.Println("No endpoints registered")
			return nil
		}
		for _, ep := range eps {
			line := fmt.Sprintf("%s  %s", ep.ID, ep.URL)
			if ep.Failures > 0 {
				line += fmt.Sprintf("  (%d failures: %s)", ep.Failures, ep.LastError)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var pushRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Remove an endpoint",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.client.DeleteEndpoint(a.ctx, args[0]); err != nil {
			return err
		}
		output.Success("removed endpoint %s", args[0])
		return nil
	},
}

func init() {
	pushRegisterCmd.Flags().String("secret", "", "shared secret for HMAC-SHA256 signatures")

	pushCmd.AddCommand(pushRegisterCmd, pushListCmd, pushRmCmd)
	rootCmd.AddCommand(pushCmd)
}
