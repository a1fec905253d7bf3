package cmd

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/config"
	"github.com/marcus/hearth/internal/storeclient"
	"github.com/marcus/hearth/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version and check for updates",
	GroupID: "system",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		short, _ := cmd.Flags().GetBool("short")
		if short {
			fmt.Print(versionStr)
			return
		}

		fmt.Printf("hearth version %s\n", versionStr)
		printServerVersion(cmd)

		checkUpdates, _ := cmd.Flags().GetBool("check")
		if !checkUpdates || version.IsDevelopmentVersion(versionStr) {
			return
		}

		result := version.CachedCheck(func(current string) version.CheckResult {
			return version.Check(cmd.Context(), current)
		}, versionStr)
		// Network errors are not worth reporting here.
		if result.Error != nil || !result.HasUpdate {
			return
		}
		fmt.Printf("\nUpdate available: %s → %s\n", versionStr, result.LatestVersion)
		if c := version.UpdateCommand(result.LatestVersion); c != "" {
			fmt.Printf("Run: %s\n", c)
		}
	},
}

// printServerVersion reports the configured server, if it answers quickly.
func printServerVersion(cmd *cobra.Command) {
	cfg, err := config.Load()
	if err != nil || cfg.ServerURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	h, err := storeclient.New(cfg.ServerURL, cfg.Token).HealthCheck(ctx)
	if err != nil {
		fmt.Printf("server %s unreachable\n", cfg.ServerURL)
		return
	}
	fmt.Printf("server %s version %s\n", cfg.ServerURL, cmp.Or(h.Version, "unknown"))
}

func init() {
	versionCmd.Flags().Bool("short", false, "print only the version")
	versionCmd.Flags().Bool("check", true, "check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}
