package commands

import (
	"fmt"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var (
		logLevelOverride string
		configPath       string
	)

	cmd := &cobra.Command{
		Use:           "taskgate",
		Short:         "taskgate - sandboxed data actions behind a policy gate",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigPath(configPath)
			if cmd.Name() == "init" || cmd.Name() == "version" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.taskgate/config.json)")

	cmd.AddCommand(
		NewInitCmd(),
		NewServeCmd(),
		NewCallCmd(),
		NewActionsCmd(),
		NewCheckCmd(),
		NewTaskCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}
