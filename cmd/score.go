package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/report"
	"github.com/sells-group/fitscore-cli/internal/scoring"
)

var (
	scorePortal  string
	scoreKind    string
	scoreID      string
	scoreDrain   bool
	scoreEnqueue bool
	scoreFormat  string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a record or drain the scoring queue",
	Long: `Scores CRM records against the portal's historical deal profile and
writes the fit score back onto the record.

Examples:
  # Score one deal now
  fitscore-cli score --portal 12345 --kind deals --id 901

  # Queue a deal for the next drain
  fitscore-cli score --portal 12345 --kind deals --id 901 --enqueue

  # Drain the queue
  fitscore-cli score --portal 12345 --drain`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, scorePortal, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		if scoreDrain {
			summary, drainErr := env.newWorker().Drain(ctx)
			if err := report.Render(os.Stdout, scoreFormat, summary); err != nil {
				return err
			}
			return drainErr
		}

		if scoreKind == "" || scoreID == "" {
			return eris.New("either --drain or both --kind and --id are required")
		}
		kind, err := model.ParseRecordKind(scoreKind)
		if err != nil {
			return err
		}

		if scoreEnqueue {
			item, created, err := env.Store.EnqueueScore(ctx, scorePortal, kind, scoreID)
			if err != nil {
				return err
			}
			if !created {
				zap.L().Info("record already queued", zap.String("queue_id", item.ID))
			}
			return report.Render(os.Stdout, scoreFormat, item)
		}

		result, err := env.newEngine().Score(ctx, kind, scoreID)
		if err != nil {
			if scoring.IsQuotaExceeded(err) {
				zap.L().Warn("scoring quota exhausted", zap.Error(err))
			}
			return err
		}
		return report.Render(os.Stdout, scoreFormat, result)
	},
}

func init() {
	f := scoreCmd.Flags()
	f.StringVar(&scorePortal, "portal", "", "portal ID (required)")
	f.StringVar(&scoreKind, "kind", "", "record kind: deals, contacts, or companies")
	f.StringVar(&scoreID, "id", "", "record ID")
	f.BoolVar(&scoreDrain, "drain", false, "drain the scoring queue instead of scoring one record")
	f.BoolVar(&scoreEnqueue, "enqueue", false, "queue the record instead of scoring it now")
	f.StringVar(&scoreFormat, "format", "json", "output format: json or yaml")
	_ = scoreCmd.MarkFlagRequired("portal")

	rootCmd.AddCommand(scoreCmd)
}
