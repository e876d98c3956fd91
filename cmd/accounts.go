package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/report"
	"github.com/sells-group/fitscore-cli/internal/secrets"
)

var (
	accountPortal  string
	accountAccess  string
	accountRefresh string
	accountPlan    int
	accountFormat  string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage connected portals",
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect a portal with its OAuth credential pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		if accountAccess == "" || accountRefresh == "" {
			return eris.New("--access-token and --refresh-token are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sealer, err := secrets.NewSealer([]byte(cfg.Crypto.Key))
		if err != nil {
			return err
		}
		accessEnc, err := sealer.Seal(accountAccess)
		if err != nil {
			return err
		}
		refreshEnc, err := sealer.Seal(accountRefresh)
		if err != nil {
			return err
		}

		account := &model.Account{
			PortalID:        accountPortal,
			Source:          "hubspot",
			AccessTokenEnc:  accessEnc,
			RefreshTokenEnc: refreshEnc,
			PlanLimit:       accountPlan,
			PeriodStart:     time.Now().UTC(),
			Stats:           map[model.Classification]model.ClassStats{},
		}
		if err := st.UpsertAccount(ctx, account); err != nil {
			return err
		}

		zap.L().Info("portal connected",
			zap.String("portal_id", accountPortal),
			zap.Int("plan_limit", accountPlan))
		return nil
	},
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected portals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		accounts, err := st.ListAccounts(ctx)
		if err != nil {
			return err
		}
		return report.Render(os.Stdout, accountFormat, accounts)
	},
}

func init() {
	f := accountsAddCmd.Flags()
	f.StringVar(&accountPortal, "portal", "", "portal ID (required)")
	f.StringVar(&accountAccess, "access-token", "", "OAuth access token")
	f.StringVar(&accountRefresh, "refresh-token", "", "OAuth refresh token")
	f.IntVar(&accountPlan, "plan-limit", 0, "monthly scoring quota (0 = unmetered)")
	_ = accountsAddCmd.MarkFlagRequired("portal")

	accountsListCmd.Flags().StringVar(&accountFormat, "format", "json", "output format: json or yaml")

	accountsCmd.AddCommand(accountsAddCmd, accountsListCmd)
	rootCmd.AddCommand(accountsCmd)
}
