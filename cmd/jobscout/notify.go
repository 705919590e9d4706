package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/amishk599/jobscout/internal/notifier"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Run report notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a sample run report",
	Long:  "Reports a sample completed run through the configured notifier (log or slack) and prints the run that was sent.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	kind := cfg.Notification.Type
	if kind == "" {
		kind = "log"
	}
	n := setupNotifier(cfg, &http.Client{Timeout: cfg.Fetch.Timeout}, logger)
	run, err := notifier.SendTestMessage(n)
	if err != nil {
		logger.Error("sample run report failed", "notifier", kind, "error", err)
		os.Exit(1)
	}

	fmt.Printf("sent sample report via %s notifier for %s\n", kind, run.Query)
	printRun(run)
	return nil
}
