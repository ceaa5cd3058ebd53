package commands

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/MEKXH/taskgate/internal/provider"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show taskgate configuration status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	rt, err := buildServices(cfg)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("taskgate Status"))

	fmt.Println(nameStyle.Render("Config"))
	fmt.Printf("  Path:    %s\n", config.ConfigPath())
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Println("  Status:  OK")
	} else {
		fmt.Println("  Status:  Not found (run 'taskgate init')")
	}

	fmt.Println(nameStyle.Render("Sandbox"))
	fmt.Printf("  Root:    %s\n", rt.gate.Root())

	fmt.Println(nameStyle.Render("Gateway"))
	fmt.Printf("  Address: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token != "" {
		fmt.Println("  Auth:    token configured")
	} else {
		fmt.Println("  Auth:    no token (open)")
	}

	fmt.Println(nameStyle.Render("Actions"))
	fmt.Printf("  Timeout: %ds\n", cfg.Actions.TimeoutSeconds)
	for _, name := range rt.dispatcher.Registry().Names() {
		fmt.Printf("  %s: ready\n", name)
	}
	fmt.Printf("  git:     %s\n", binaryStatus(cfg.Actions.Git.Binary))
	fmt.Printf("  duckdb:  %s\n", binaryStatus(cfg.Actions.DuckDB.Binary))
	transcription := "disabled (no api_key)"
	if cfg.Actions.Transcription.APIKey != "" {
		transcription = fmt.Sprintf("enabled (model=%s)", cfg.Actions.Transcription.Model)
	}
	fmt.Printf("  transcription: %s\n", transcription)

	fmt.Println(nameStyle.Render("Agent"))
	fmt.Printf("  Model:   %s\n", cfg.Agent.Model)
	providers := []struct {
		name string
		set  bool
	}{
		{"OpenRouter", cfg.Providers.OpenRouter.APIKey != ""},
		{"Claude", cfg.Providers.Claude.APIKey != ""},
		{"OpenAI", cfg.Providers.OpenAI.APIKey != ""},
		{"DeepSeek", cfg.Providers.DeepSeek.APIKey != ""},
		{"Ollama", cfg.Providers.Ollama.BaseURL != ""},
	}
	for _, p := range providers {
		status := "Not configured"
		if p.set {
			status = "Configured"
		}
		fmt.Printf("  %s: %s\n", p.name, status)
	}
	if !provider.Configured(cfg) {
		fmt.Println("  /run and 'taskgate task' are disabled")
	}
	return nil
}

func binaryStatus(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Sprintf("%s not found", name)
	}
	return path
}
