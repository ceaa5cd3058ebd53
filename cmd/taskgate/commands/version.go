package commands

import (
	"fmt"
	"runtime"

	"github.com/MEKXH/taskgate/internal/version"
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of taskgate",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			if info.Commit != "" {
				fmt.Printf("taskgate %s (%s) %s/%s\n", info.Version, info.Commit, runtime.GOOS, runtime.GOARCH)
				return
			}
			fmt.Printf("taskgate %s %s/%s\n", info.Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
