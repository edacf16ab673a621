package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=..."
var version = ""

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mpresolve",
	// Printing the version never needs a config file
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mpresolve version %s\n", currentVersion())
	},
}

func currentVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
