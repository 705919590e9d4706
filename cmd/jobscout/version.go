package main

import (
	"fmt"
	"runtime"

	"github.com/amishk599/jobscout/internal/store"
	"github.com/spf13/cobra"
)

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version, schema version and Go runtime",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionLine())
	},
}

func versionLine() string {
	return fmt.Sprintf("jobscout %s (database schema v%d, %s %s/%s)",
		version, store.SchemaVersion(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
