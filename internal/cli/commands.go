package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/litebrick/consult-bookings/internal/app"
	"github.com/litebrick/consult-bookings/internal/platform/sealer"
	"github.com/litebrick/consult-bookings/internal/repo/postgres"
	"github.com/litebrick/consult-bookings/pkg/database"
)

func NewKeygenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new ENCRYPTION_KEY for contact encryption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := sealer.GenerateKey()
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), map[string]string{"key": key}, func(w io.Writer) {
				fmt.Fprintf(w, "ENCRYPTION_KEY=%s\n", key)
			})
		},
	}
}

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.loadConfig()
			ctx := cmd.Context()

			pool, err := database.Connect(ctx, cfg.Database.URL, database.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := database.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), map[string][]string{"applied": applied}, func(w io.Writer) {
				if len(applied) == 0 {
					fmt.Fprintln(w, "schema is up to date")
					return
				}
				for _, name := range applied {
					fmt.Fprintf(w, "applied %s\n", name)
				}
			})
		},
	}
}

func NewPurgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Run one retention sweep now",
		Long: `Run one retention sweep now: hard-delete confirmed reservations that ended more
than RETENTION_PAST_BOOKING_MINUTES ago, remove their calendar events and record PURGED audit
entries. Expired rate-limit windows are dropped as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, opts.loadConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Sweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), report, func(w io.Writer) {
				fmt.Fprintf(w, "purged %d, skipped %d, failed %d\n", report.Purged, report.Skipped, report.Failed)
			})
		},
	}
}

func NewAuditCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List the most recent audit records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.loadConfig()
			ctx := cmd.Context()

			pool, err := database.Connect(ctx, cfg.Database.URL, database.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			records, err := postgres.NewReservationRepo(pool).ListAudit(ctx, limit)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), records, func(w io.Writer) {
				for _, r := range records {
					ref := "-"
					if r.ReservationID != nil {
						ref = *r.ReservationID
					}
					fmt.Fprintf(w, "%s  %-9s  %-36s  day=%s end=%s\n",
						r.CreatedAt.Format(time.RFC3339), r.Action, ref,
						r.Metadata.Date.Format(time.RFC3339), r.Metadata.EndUTC.Format(time.RFC3339))
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of records to show (max 1000)")
	return cmd
}
