package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/spf13/cobra"
)

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Show the gate decision for a path and intent",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	cmd.Flags().String("intent", string(policy.IntentRead), "read|write_new|write_overwrite|write_idempotent")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	rawIntent, _ := cmd.Flags().GetString("intent")
	intent, err := policy.ParseIntent(rawIntent)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	gate, err := policy.NewGate(cfg.Sandbox.Root)
	if err != nil {
		return fmt.Errorf("invalid sandbox: %w", err)
	}

	d := gate.Check(args[0], intent)
	printDecision(os.Stdout, args[0], intent, d)
	if !d.Allowed {
		return fmt.Errorf("denied by %s rule", d.Rule)
	}
	return nil
}

func printDecision(out io.Writer, path string, intent policy.Intent, d policy.Decision) {
	verdict := intentStyle.Render("ALLOW")
	if !d.Allowed {
		verdict = deniedStyle.Render("DENY")
	}
	fmt.Fprintf(out, "%s %s (%s)\n", verdict, path, intent)
	if d.Path != "" {
		fmt.Fprintf(out, "  Resolved: %s\n", d.Path)
	}
	if !d.Allowed {
		fmt.Fprintf(out, "  Rule:     %s\n", d.Rule)
		fmt.Fprintf(out, "  Reason:   %s\n", d.Reason)
	}
}
