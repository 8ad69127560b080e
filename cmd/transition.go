package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasbanco/prospect-engine/internal/model"
	"github.com/atlasbanco/prospect-engine/internal/qualify"
)

var transitionReason string

var transitionCmd = &cobra.Command{
	Use:   "transition <kind> <id> <action>",
	Short: "Apply a workflow action to a candidate",
	Long:  "Actions: mark_contacted, convert, reject, recalculate. Reject takes --reason.",
	Args:  cobra.ExactArgs(3),
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
		c, err := engine.Transition(ctx, kind, args[1], qualify.Action(args[2]),
			qualify.TransitionInput{Reason: transitionReason})
		if err != nil {
			return err
		}

		zap.L().Info("transition applied",
			zap.String("action", args[2]),
			zap.String("kind", string(c.Kind)),
			zap.String("id", c.ID),
			zap.String("status", string(c.Status)),
		)
		return printJSON(c)
	},
}

func parseKind(s string) (model.Kind, error) {
	kind := model.Kind(s)
	if !kind.Valid() {
		return "", eris.Errorf("unknown kind %q (want prospect, cpf_client, unbanked_company, or client)", s)
	}
	return kind, nil
}

func init() {
	transitionCmd.Flags().StringVar(&transitionReason, "reason", "", "rejection reason")
	rootCmd.AddCommand(transitionCmd)
}
