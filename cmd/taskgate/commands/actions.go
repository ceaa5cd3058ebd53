package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#8E4EC6")).
			Padding(0, 1).
			MarginBottom(1)
	nameStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8E4EC6"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	intentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E8B57"))
	deniedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D9534F"))
)

func NewActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List registered actions with their parameters and path intents",
		RunE:  runActions,
	}
}

func runActions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	rt, err := buildServices(cfg)
	if err != nil {
		return err
	}
	printActions(os.Stdout, rt.dispatcher.Describe())
	return nil
}

func printActions(out io.Writer, infos []dispatch.Info) {
	fmt.Fprintln(out, headerStyle.Render("Actions"))
	for _, info := range infos {
		fmt.Fprintf(out, "%s  %s\n", nameStyle.Render(info.Name), dimStyle.Render(info.Description))
		for _, p := range info.Params {
			typ := p.Type
			if typ == "" {
				typ = "any"
			}
			line := fmt.Sprintf("    %s (%s)", p.Name, typ)
			if p.Required {
				line += " required"
			}
			if len(p.Enum) > 0 {
				line += " one of " + strings.Join(p.Enum, "|")
			}
			fmt.Fprintln(out, line)
		}
		for _, path := range info.Paths {
			target := path.Param
			if path.Fixed != "" {
				target = path.Fixed + " (fixed)"
			}
			fmt.Fprintf(out, "    path %s: %s\n", target, intentStyle.Render(path.Intent))
		}
		fmt.Fprintln(out)
	}
}
