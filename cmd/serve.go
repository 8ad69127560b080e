package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasbanco/prospect-engine/internal/enrich"
	"github.com/atlasbanco/prospect-engine/internal/monitoring"
	"github.com/atlasbanco/prospect-engine/internal/qualify"
	"github.com/atlasbanco/prospect-engine/internal/server"
)

var (
	servePort       int
	serveWithWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
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

		engine := qualify.New(st, cfg.Scoring.Weights)
		orchestrator := enrich.NewOrchestrator(st)
		srv := server.New(st, engine, orchestrator, collector)

		alerter := monitoring.NewAlerter(cfg.Monitoring.Thresholds)
		checker := monitoring.NewChecker(collector, alerter, cfg.Monitoring.CheckInterval())
		go checker.Run(ctx)

		if serveWithWorker {
			registry := newRegistry(breakers)
			runner := enrich.NewRunner(st, registry, collector, cfg.Enrichment.Concurrency)
			go func() {
				if err := runner.Poll(ctx, cfg.Enrichment.PollInterval()); err != nil && ctx.Err() == nil {
					zap.L().Error("embedded worker stopped", zap.Error(err))
				}
			}()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", true, "run the enrichment worker in-process")
	rootCmd.AddCommand(serveCmd)
}
