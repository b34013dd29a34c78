package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/girmesh03/Task-Manager-V9-sub000/internal/cmd.Version=..."
var (
	Version = "0.1.0"
	Commit  = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	// Skip config loading so version works without a config.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskmgr v%s (%s, %s)\n", Version, Commit, runtime.Version())
	},
}
