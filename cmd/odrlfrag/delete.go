package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <process-id>...",
	Short:   "Delete stored analyses",
	GroupID: "store",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		var errs []error
		for _, id := range args {
			err := s.DeleteAnalysis(ctx, id)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				errs = append(errs, fmt.Errorf("no stored analysis for process %q", id))
			case err != nil:
				errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
		}
		return errors.Join(errs...)
	},
}
