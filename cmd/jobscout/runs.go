package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/amishk599/jobscout/internal/model"
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent runs",
	Long:  "Prints a table of the most recent pipeline runs with their counts and outcome.",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st := openStore(ctx, cfg, logger)
	defer st.Close()

	runs, err := st.ListRuns(ctx, runsLimit)
	if err != nil {
		logger.Error("listing runs failed", "error", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Println(titleStyle.Render("Recent runs"))
	fmt.Println(renderTable(
		[]string{"#", "Started", "Query", "Status", "Disc", "New", "Upd", "Same", "Fail", "Took", "Note"},
		runRows(runs),
		func(row []string) bool { return row[3] == string(model.RunFailed) },
	))
	return nil
}

func runRows(runs []model.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		took := "-"
		if r.EndedAt != nil {
			took = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		note := ""
		if r.ErrorSummary != nil {
			note = truncate(*r.ErrorSummary, 40)
		}
		query := r.Query.Keywords
		if r.Query.Location != "" {
			query += " @ " + r.Query.Location
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			truncate(query, 32),
			string(r.Status),
			strconv.Itoa(r.Discovered),
			strconv.Itoa(r.PersistedNew),
			strconv.Itoa(r.PersistedUpdated),
			strconv.Itoa(r.Unchanged),
			strconv.Itoa(r.Failed),
			took,
			note,
		})
	}
	return rows
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
