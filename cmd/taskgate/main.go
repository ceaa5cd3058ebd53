package main

import (
	"os"

	"github.com/MEKXH/taskgate/cmd/taskgate/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
