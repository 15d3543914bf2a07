package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tradebot/backoffice/internal/app"
	"github.com/tradebot/backoffice/internal/config"
	"github.com/tradebot/backoffice/internal/logging"
	"github.com/tradebot/backoffice/internal/repository"
	"github.com/tradebot/backoffice/internal/service"
)

type options struct {
	output string
	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "backofficectl",
		Short: "Back-office maintenance: migrations, accrual passes, plans",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logging.New(logging.Config{Level: cfg.LogLevel, Format: "console"})
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table, json, yaml")

	root.AddCommand(newMigrateCmd(opts), newAccrueCmd(opts), newPlansCmd(opts))
	return root
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := repository.NewDB(ctx, opts.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.RunMigrations(ctx, db, opts.logger); err != nil {
				return err
			}
			version, err := repository.MigrationVersion(ctx, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newAccrueCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "accrue",
		Short: "Run one accrual pass over every subscribed user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Accrual.RunOnce(ctx, service.TriggerCLI)
			if err != nil {
				return err
			}
			if opts.output != "table" {
				return printOutput(cmd.OutOrStdout(), opts.output, report)
			}

			t := NewTable("PROCESSED", "ADVANCED", "SKIPPED", "FAILED", "DEGRADED", "ACTIVE", "ACCRUED")
			t.AddRow(
				strconv.Itoa(report.Processed), strconv.Itoa(report.Advanced), strconv.Itoa(report.Skipped),
				strconv.Itoa(report.Failed), strconv.Itoa(report.Degraded), strconv.Itoa(report.ActiveBots),
				report.Accrued.String(),
			)
			t.Render(cmd.OutOrStdout())
			for _, e := range report.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), "  ", e)
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d user(s) failed", report.Failed)
			}
			return nil
		},
	}
}

func newPlansCmd(opts *options) *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List the plan catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			plans, err := a.Plans.List(ctx, archived)
			if err != nil {
				return err
			}
			if opts.output != "table" {
				return printOutput(cmd.OutOrStdout(), opts.output, plans)
			}

			t := NewTable("ID", "NAME", "VERSION", "WEEKLY REQUIRED", "DAILY RATE", "MIN WEEKS", "ARCHIVED")
			for _, p := range plans {
				t.AddRow(p.ID, p.Name, strconv.Itoa(p.Version), p.WeeklyRequiredAmount.String(),
					p.ProfitRateDaily.String(), strconv.Itoa(p.WithdrawalConditions.MinWeeks),
					strconv.FormatBool(p.Archived))
			}
			t.Render(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived plan versions")
	return cmd
}
