// Command ledgerctl administers the donation ledger: schema, provisioning,
// reconciliation and inspection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hanizaheer02/impact-tracker/internal/adapter/repo"
	"github.com/hanizaheer02/impact-tracker/internal/audit"
	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
	"github.com/hanizaheer02/impact-tracker/internal/infra"
)

func main() {
	_ = godotenv.Load(".env", ".env.local")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Administer the donation ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		migrateCmd(),
		provisionCmd(),
		auditCmd(),
		recentCmd(),
		regionsCmd(),
	)
	return cmd
}

// session holds the connections a subcommand needs.
type session struct {
	cfg    *infra.Config
	logger zerolog.Logger
}

func newSession() (*session, error) {
	cfg, err := infra.LoadLedgerConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.LedgerBackend != infra.BackendPostgres {
		return nil, fmt.Errorf("ledgerctl requires LEDGER_BACKEND=%s", infra.BackendPostgres)
	}
	return &session{cfg: cfg, logger: infra.NewLogger(cfg.AppEnv, "ledgerctl")}, nil
}

func (s *session) ledger(ctx context.Context) (*repo.LedgerRepositoryPG, func(), error) {
	pool, err := infra.NewDBPool(ctx, s.cfg)
	if err != nil {
		return nil, nil, err
	}
	runner := infra.NewSQLRunner(pool, s.logger)
	return repo.NewLedgerRepository(runner, s.cfg.LedgerNotifyChannel), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			ledger, closeFn, err := s.ledger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := ledger.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func provisionCmd() *cobra.Command {
	var (
		total  string
		donors int64
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the aggregate counters record",
		Long: `Creates the global counters record with the given starting values.
The values become the audit baseline. An existing record is left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			counters, err := parseBaseline(total, donors)
			if err != nil {
				return err
			}
			s, err := newSession()
			if err != nil {
				return err
			}
			ledger, closeFn, err := s.ledger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			created, err := ledger.Provision(cmd.Context(), counters)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintln(cmd.OutOrStdout(), "counters already provisioned")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "counters provisioned: total %s, donors %d\n",
				counters.TotalDonations.StringFixed(2), counters.UniqueDonors)
			return nil
		},
	}
	cmd.Flags().StringVar(&total, "total", "0", "starting total donations")
	cmd.Flags().Int64Var(&donors, "donors", 0, "starting donor count")
	return cmd
}

func parseBaseline(total string, donors int64) (domain.AggregateCounters, error) {
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return domain.AggregateCounters{}, fmt.Errorf("--total: %w", err)
	}
	if amount.IsNegative() {
		return domain.AggregateCounters{}, fmt.Errorf("--total must not be negative")
	}
	if donors < 0 {
		return domain.AggregateCounters{}, fmt.Errorf("--donors must not be negative")
	}
	return domain.AggregateCounters{TotalDonations: amount, UniqueDonors: donors}, nil
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Reconcile the counters with the ledger once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			db, err := infra.OpenSQLDB(cmd.Context(), s.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := audit.NewReconciler(db, s.logger, nil).Check(cmd.Context())
			if err != nil {
				return err
			}
			renderReport(cmd.OutOrStdout(), report)
			if report.Drift {
				return fmt.Errorf("counters drifted from the ledger")
			}
			return nil
		},
	}
}

func recentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the newest donations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			ledger, closeFn, err := s.ledger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			items, err := ledger.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderDonations(cmd.OutOrStdout(), items)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of donations to show")
	return cmd
}

func regionsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Show the region directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = os.Getenv("REGIONS_FILE")
			}
			dir := geo.DefaultDirectory()
			if file != "" {
				loaded, err := geo.LoadDirectory(file)
				if err != nil {
					return err
				}
				dir = loaded
			}
			renderRegions(cmd.OutOrStdout(), dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "region directory YAML (defaults to REGIONS_FILE)")
	return cmd
}
