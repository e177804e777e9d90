package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/store"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List stored analyses",
	GroupID: "store",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, _ := cmd.Flags().GetString("strategy")
		mode, _ := cmd.Flags().GetString("mode")
		sort, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		ctx := context.Background()
		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		list, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{
			Strategy: model.Strategy(strategy),
			Mode:     model.Mode(mode),
			Sort:     sort,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if done, err := printStructured(w, list); done {
			return err
		}
		printAnalysisTable(w, list, total)
		return nil
	},
}

func init() {
	listCmd.Flags().String("strategy", "", "only analyses that used this strategy")
	listCmd.Flags().String("mode", "", "only analyses that used this generation mode")
	listCmd.Flags().String("sort", "", "sort column, prefix with - for descending (default -updated_at)")
	listCmd.Flags().Int("limit", 50, "maximum number of analyses")
	listCmd.Flags().Int("offset", 0, "number of analyses to skip")
}
