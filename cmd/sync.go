package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/report"
	syncpkg "github.com/sells-group/fitscore-cli/internal/sync"
)

var (
	syncPortal     string
	syncAll        bool
	syncKinds      string
	syncSince      string
	syncMaxRecords int
	syncDeadline   int
	syncDryRun     bool
	syncFormat     string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync modified CRM records into the vector index",
	Long: `Pages records modified since the last sync cursor, packages them into
privacy-scrubbed documents, embeds what changed, and upserts the vectors
into the portal's index namespace. Portals are always synced one at a time.

Examples:
  # Sync all record kinds for a portal
  fitscore-cli sync --portal 12345

  # Sync deals only, from a fixed point in time
  fitscore-cli sync --portal 12345 --kinds deals --since 2026-08-01T00:00:00Z

  # Preview what would change without writing
  fitscore-cli sync --portal 12345 --dry-run

  # Sync every connected portal sequentially
  fitscore-cli sync --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if (syncPortal == "") == (!syncAll) {
			return eris.New("exactly one of --portal or --all is required")
		}

		portals := []string{syncPortal}
		if syncAll {
			var err error
			if portals, err = listPortals(ctx); err != nil {
				return err
			}
		}

		var summaries []*model.JobSummary
		for _, portalID := range portals {
			summary, err := runPortalSync(ctx, portalID)
			if summary != nil {
				summaries = append(summaries, summary)
			}
			if err != nil && !syncAll {
				if summary != nil {
					_ = report.Render(os.Stdout, syncFormat, summary)
				}
				return err
			}
			if err != nil {
				zap.L().Error("portal sync failed, continuing",
					zap.String("portal_id", portalID), zap.Error(err))
			}
		}

		if !syncAll {
			return report.Render(os.Stdout, syncFormat, summaries[0])
		}
		return report.Render(os.Stdout, syncFormat, summaries)
	},
}

func listPortals(ctx context.Context) ([]string, error) {
	if err := cfg.Validate("migrate"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	portals := make([]string, 0, len(accounts))
	for _, a := range accounts {
		portals = append(portals, a.PortalID)
	}
	return portals, nil
}

func runPortalSync(ctx context.Context, portalID string) (*model.JobSummary, error) {
	env, err := initEnv(ctx, portalID, "sync")
	if err != nil {
		return nil, err
	}
	defer env.Close()

	job := env.newSyncJob()
	if err := applySyncFlags(job); err != nil {
		return nil, err
	}
	return job.Run(ctx)
}

func applySyncFlags(job *syncpkg.Job) error {
	if syncKinds != "" {
		kinds, err := parseKinds(syncKinds)
		if err != nil {
			return err
		}
		job.Kinds = kinds
	}
	if syncSince != "" {
		since, err := time.Parse(time.RFC3339, syncSince)
		if err != nil {
			return eris.Wrap(err, "parse --since")
		}
		job.Since = &since
	}
	if syncMaxRecords > 0 {
		job.MaxRecords(syncMaxRecords)
	}
	if syncDeadline > 0 {
		job.Deadline = time.Duration(syncDeadline) * time.Second
	}
	job.DryRun = syncDryRun
	return nil
}

func parseKinds(s string) ([]model.RecordKind, error) {
	var kinds []model.RecordKind
	for _, part := range strings.Split(s, ",") {
		kind, err := model.ParseRecordKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func init() {
	f := syncCmd.Flags()
	f.StringVar(&syncPortal, "portal", "", "portal ID to sync")
	f.BoolVar(&syncAll, "all", false, "sync every connected portal, sequentially")
	f.StringVar(&syncKinds, "kinds", "", "comma-separated record kinds (default: companies,contacts,deals)")
	f.StringVar(&syncSince, "since", "", "override the sync cursor (RFC3339)")
	f.IntVar(&syncMaxRecords, "max-records", 0, "per-kind record cap (default from config)")
	f.IntVar(&syncDeadline, "deadline", 0, "run deadline in seconds (default from config)")
	f.BoolVar(&syncDryRun, "dry-run", false, "diff only, write nothing")
	f.StringVar(&syncFormat, "format", "json", "summary output format: json or yaml")

	rootCmd.AddCommand(syncCmd)
}
