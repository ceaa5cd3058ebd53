package commands

import (
	"fmt"
	"strings"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/spf13/cobra"
)

func NewTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <text>",
		Short: "Run the task agent once against the registered actions",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTask,
	}
}

func runTask(cmd *cobra.Command, args []string) error {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		return fmt.Errorf("task is empty")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	rt, err := buildServices(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	loop, err := rt.newAgent(ctx)
	if err != nil {
		return err
	}
	if loop == nil {
		return fmt.Errorf("no model provider configured; add an API key under providers in %s", config.ConfigPath())
	}
	loop.OnToolFinish = func(name, result string, err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		fmt.Printf("%s %s\n", dimStyle.Render("-> "+name), status)
	}

	answer, err := loop.Run(ctx, task)
	if snap := rt.metrics.Snapshot(); snap.HasData() {
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d action(s), %d failed, avg %.0fms",
			snap.Dispatch.Total, snap.Dispatch.Errors, snap.Dispatch.AvgLatencyMs())))
	}
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}
