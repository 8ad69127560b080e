package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atlasbanco/prospect-engine/internal/enrich"
	"github.com/atlasbanco/prospect-engine/internal/monitoring"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the enrichment worker loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		breakers := newBreakers()
		collector := monitoring.NewCollector(breakers)

		alerter := monitoring.NewAlerter(cfg.Monitoring.Thresholds)
		checker := monitoring.NewChecker(collector, alerter, cfg.Monitoring.CheckInterval())
		go checker.Run(ctx)

		registry := newRegistry(breakers)
		runner := enrich.NewRunner(st, registry, collector, cfg.Enrichment.Concurrency)

		err = runner.Poll(ctx, cfg.Enrichment.PollInterval())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
