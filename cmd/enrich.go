package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/atlasbanco/prospect-engine/internal/enrich"
	"github.com/atlasbanco/prospect-engine/internal/model"
)

var (
	enrichIDs         []string
	enrichSourcesPath string
	enrichRunNow      bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <kind>",
	Short: "Queue an enrichment job",
	Long:  "Queues an enrichment job for the given candidates. Sources come from a YAML file; see config examples for the upload, database, and external_api shapes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}

		sources, err := loadSources(enrichSourcesPath)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		orchestrator := enrich.NewOrchestrator(st)
		job, err := orchestrator.Start(ctx, kind, enrichIDs, sources)
		if err != nil {
			return err
		}
		zap.L().Info("enrichment job queued",
			zap.String("job", job.ID),
			zap.Int("candidates", len(job.CandidateIDs)),
			zap.Int("sources", len(job.Sources)),
		)

		if enrichRunNow {
			runner := enrich.NewRunner(st, newRegistry(newBreakers()), nil, cfg.Enrichment.Concurrency)
			if err := runner.Run(ctx, job.ID); err != nil {
				return err
			}
			job, err = orchestrator.Status(ctx, job.ID)
			if err != nil {
				return err
			}
		}
		return printJSON(job)
	},
}

var enrichStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show an enrichment job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		job, err := enrich.NewOrchestrator(st).Status(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

func loadSources(path string) ([]model.SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read sources file")
	}
	var sources []model.SourceConfig
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, eris.Wrap(err, "parse sources file")
	}
	return sources, nil
}

func init() {
	enrichCmd.Flags().StringSliceVar(&enrichIDs, "ids", nil, "candidate ids (required)")
	enrichCmd.Flags().StringVar(&enrichSourcesPath, "sources", "", "YAML file listing source configs (required)")
	enrichCmd.Flags().BoolVar(&enrichRunNow, "run", false, "run the job in-process instead of leaving it for the worker")
	_ = enrichCmd.MarkFlagRequired("ids")
	_ = enrichCmd.MarkFlagRequired("sources")
	enrichCmd.AddCommand(enrichStatusCmd)
	rootCmd.AddCommand(enrichCmd)
}
