package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/hearth/internal/config"
	"github.com/marcus/hearth/internal/output"
	"github.com/marcus/hearth/internal/suggest"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage hearth configuration",
	GroupID: "system",
}

func loadConfigFile() (string, *config.Config, error) {
	path, err := config.Path()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return "", nil, err
	}
	cfg.Normalize()
	return path, cfg, nil
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		red := cfg.Redacted()
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(red)
		}
		path, _ := config.Path()
		fmt.Printf("# %s\n", path)
		for _, key := range config.Keys {
			val, _ := red.Get(key)
			fmt.Printf("%-11s %s\n", key+":", val)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		val, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Long:  "Set a config value. Keys: " + strings.Join(config.Keys, ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, err := loadConfigFile()
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			if _, unknown := cfg.Get(args[0]); unknown != nil {
				if matches := suggest.Closest(args[0], config.Keys); len(matches) > 0 {
					return fmt.Errorf("%w; did you mean %s?", err, strings.Join(matches, " or "))
				}
			}
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		output.Success("set %s", args[0])
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up server, token and member interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, err := loadConfigFile()
		if err != nil {
			return err
		}

		weekStart := cfg.WeekStart
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Server URL").
					Value(&cfg.ServerURL).
					Placeholder("http://hearth.local:8080").
					Validate(func(s string) error {
						if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
							return fmt.Errorf("must start with http:// or https://")
						}
						return nil
					}),
				huh.NewInput().
					Title("Your name").
					Description("As created on the server with `hearth-server member add`").
					Value(&cfg.Member).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("name is required")
						}
						return nil
					}),
				huh.NewInput().
					Title("Token").
					EchoMode(huh.EchoModePassword).
					Value(&cfg.Token).
					Placeholder("hth_..."),
			).Title("Connect to your household"),
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Weeks start on").
					Options(
						huh.NewOption("Monday", "monday"),
						huh.NewOption("Sunday", "sunday"),
					).
					Value(&weekStart),
				huh.NewInput().
					Title("Chat channel").
					Value(&cfg.Channel),
			).Title("Preferences"),
		).WithTheme(huh.ThemeDracula())

		if err := form.RunWithContext(cmd.Context()); err != nil {
			return err
		}
		cfg.WeekStart = weekStart
		cfg.Normalize()
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		output.Success("saved %s", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
