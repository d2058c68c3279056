package main

import (
	"fmt"
	"time"

	"boohpay/internal/app"
	"boohpay/internal/database"
	"boohpay/internal/repository"

	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()
			if err := database.AutoMigrate(e.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	var merchant, from, to string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run reconciliation for one merchant, or the daily batch when --merchant is omitted",
		Long: `Run reconciliation.

Without --merchant the daily batch for yesterday is run and the summary stored.
With --merchant the given window is checked; --from and --to are YYYY-MM-DD dates
in the reconciliation time zone, and --to includes that whole day.

Examples:
  boohpayctl reconcile
  boohpayctl reconcile --merchant m_123 --from 2026-10-01 --to 2026-10-15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if merchant == "" {
					sum, err := a.Engine.RunDaily(cmd.Context())
					if err != nil {
						return err
					}
					return printJSON(cmd, sum)
				}
				w, err := window(a, from, to)
				if err != nil {
					return err
				}
				res, err := a.Engine.ReconcileMerchant(cmd.Context(), merchant, w)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant id")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD), defaults to the day before --to")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD), defaults to yesterday")
	return cmd
}

func window(a *app.App, from, to string) (repository.Window, error) {
	loc := a.Engine.Location()
	end := a.Engine.DayWindow(time.Now().AddDate(0, 0, -1)).End
	if to != "" {
		t, err := time.ParseInLocation(dateLayout, to, loc)
		if err != nil {
			return repository.Window{}, fmt.Errorf("--to: %w", err)
		}
		end = t.AddDate(0, 0, 1).UTC()
	}
	start := end.AddDate(0, 0, -1)
	if from != "" {
		t, err := time.ParseInLocation(dateLayout, from, loc)
		if err != nil {
			return repository.Window{}, fmt.Errorf("--from: %w", err)
		}
		start = t.UTC()
	}
	if !start.Before(end) {
		return repository.Window{}, fmt.Errorf("--from must not be after --to")
	}
	return repository.Window{Start: start, End: end}, nil
}

func payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Inspect and operate the payout queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show payout queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				st, err := a.Payouts.QueueStats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry [payout-id]",
		Short: "Requeue a failed payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Payouts.RetryJob(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "payout %s requeued\n", args[0])
				return nil
			})
		},
	})

	var merchant string
	cancel := &cobra.Command{
		Use:   "cancel [payout-id]",
		Short: "Cancel a queued payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				v, err := a.Payouts.CancelPayout(cmd.Context(), merchant, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			})
		},
	}
	cancel.Flags().StringVar(&merchant, "merchant", "", "merchant that owns the payout")
	_ = cancel.MarkFlagRequired("merchant")
	cmd.AddCommand(cancel)
	return cmd
}

func billingCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "billing", Short: "Subscription billing"}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Bill every subscription that is due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				rep, err := a.Billing.ProcessBilling(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, rep)
			})
		},
	})
	return cmd
}

func dunningCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dunning", Short: "Failed charge recovery"}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one dunning pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				rep, err := a.Dunning.ProcessDunning(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, rep)
			})
		},
	})
	return cmd
}
