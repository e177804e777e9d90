package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <process-id>",
	Short:   "Show the stored analysis of a process",
	GroupID: "store",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		a, err := s.GetAnalysis(ctx, args[0])
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no stored analysis for process %q", args[0])
		}
		if err != nil {
			return err
		}
		res, err := a.DecodeResult()
		if err != nil {
			return err
		}
		return printAnalysis(cmd.OutOrStdout(), &analysisRun{RunID: a.RunID, Result: res})
	},
}
