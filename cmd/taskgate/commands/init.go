package commands

import (
	"fmt"
	"os"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the sandbox root",
		RunE:  runInit,
	}
	cmd.Flags().String("sandbox", "", "Sandbox root to write into the new config (absolute or ~/...)")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()
	if cmd != nil {
		if root, _ := cmd.Flags().GetString("sandbox"); root != "" {
			cfg.Sandbox.Root = root
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Sandbox.Root, 0755); err != nil {
		return fmt.Errorf("create sandbox root: %w", err)
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println("taskgate initialized!")
	fmt.Printf("  Config:  %s\n", configPath)
	fmt.Printf("  Sandbox: %s\n", cfg.Sandbox.Root)
	fmt.Println()
	fmt.Println("Add provider keys to the config to enable 'taskgate task', then run 'taskgate serve'.")
	return nil
}
