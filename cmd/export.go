package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/report"
)

var (
	exportPortal string
	exportOutput string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a portal's scoring ledger to XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		events, err := st.ListScoreEvents(ctx, exportPortal, exportLimit)
		if err != nil {
			return err
		}
		if err := report.ExportScoreEventsXLSX(exportOutput, events); err != nil {
			return err
		}

		zap.L().Info("scoring ledger exported",
			zap.String("portal_id", exportPortal),
			zap.String("output", exportOutput),
			zap.Int("events", len(events)))
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportPortal, "portal", "", "portal ID (required)")
	f.StringVar(&exportOutput, "output", "score-events.xlsx", "output file path")
	f.IntVar(&exportLimit, "limit", 1000, "maximum events to export")
	_ = exportCmd.MarkFlagRequired("portal")

	rootCmd.AddCommand(exportCmd)
}
