package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/amishk599/jobscout/internal/store"
	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored postings as CSV",
	Long:  "Writes every stored posting joined with its employer as CSV, to stdout or to the file given by -o.",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st := openStore(ctx, cfg, logger)
	defer st.Close()

	table, err := st.ExportTable(ctx)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	var w io.Writer = os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			logger.Error("failed to create output file", "path", exportOut, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	if err := writeCSV(w, table); err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if exportOut != "" {
		logger.Info("export written", "path", exportOut, "rows", len(table.Rows))
	}
	return nil
}

func writeCSV(w io.Writer, t *store.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}
