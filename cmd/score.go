package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasbanco/prospect-engine/internal/model"
	"github.com/atlasbanco/prospect-engine/internal/qualify"
)

var scoreAll bool

var scoreCmd = &cobra.Command{
	Use:   "score <kind> [id]",
	Short: "Recalculate scores for one candidate or a whole kind",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := qualify.New(st, cfg.Scoring.Weights)

		if len(args) == 2 && !scoreAll {
			c, err := engine.Recalculate(ctx, kind, args[1])
			if err != nil {
				return err
			}
			return printJSON(c)
		}

		candidates, err := st.ListCandidates(ctx, kind, model.CandidateFilter{})
		if err != nil {
			return err
		}

		scored, failed := 0, 0
		for i := range candidates {
			if _, err := engine.Recalculate(ctx, kind, candidates[i].ID); err != nil {
				failed++
				zap.L().Warn("score failed",
					zap.String("id", candidates[i].ID),
					zap.Error(err),
				)
				continue
			}
			scored++
		}

		zap.L().Info("scoring complete",
			zap.String("kind", string(kind)),
			zap.Int("scored", scored),
			zap.Int("failed", failed),
		)
		return nil
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreAll, "all", false, "rescore every candidate of the kind")
	rootCmd.AddCommand(scoreCmd)
}
