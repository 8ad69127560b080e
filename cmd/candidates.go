package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlasbanco/prospect-engine/internal/model"
)

var (
	candidatesStatus      string
	candidatesMinScore    float64
	candidatesMinPriority int
	candidatesLimit       int
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Inspect candidates",
}

var candidatesListCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List candidates of one kind, best score first",
	Args:  cobra.ExactArgs(1),
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

		candidates, err := st.ListCandidates(ctx, kind, model.CandidateFilter{
			Status:      model.Status(candidatesStatus),
			MinScore:    candidatesMinScore,
			MinPriority: candidatesMinPriority,
			Limit:       candidatesLimit,
		})
		if err != nil {
			return err
		}
		return printJSON(candidates)
	},
}

var candidatesGetCmd = &cobra.Command{
	Use:   "get <kind> <id>",
	Short: "Show one candidate",
	Args:  cobra.ExactArgs(2),
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

		c, err := st.GetCandidate(ctx, kind, args[1])
		if err != nil {
			return err
		}
		return printJSON(c)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	candidatesListCmd.Flags().StringVar(&candidatesStatus, "status", "", "filter by workflow status")
	candidatesListCmd.Flags().Float64Var(&candidatesMinScore, "min-score", 0, "minimum combined score")
	candidatesListCmd.Flags().IntVar(&candidatesMinPriority, "min-priority", 0, "minimum priority")
	candidatesListCmd.Flags().IntVar(&candidatesLimit, "limit", 50, "maximum rows")
	candidatesCmd.AddCommand(candidatesListCmd)
	candidatesCmd.AddCommand(candidatesGetCmd)
	rootCmd.AddCommand(candidatesCmd)
}
