package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/odrlfrag/internal/odrl"
)

var (
	reconstructFlags analysisFlags
	reconstructOut   string
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct <process.bpmn|process.yaml>",
	Short: "Recombine fragment rules into one ODRL policy and evaluate it",
	Long: `Runs the analysis, merges every fragment's rules back into a single
process-wide ODRL Set and compares it with the process-level policy.

Nothing is stored, exported or published.`,
	GroupID: "analysis",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := reconstructFlags.options(cmd, cfg)
		if err != nil {
			return err
		}
		opts.Reconstruct = true

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		run, err := runAnalysis(ctx, args[0], opts, false)
		if err != nil {
			return err
		}
		rec := run.Result.Reconstruction

		if reconstructOut != "" {
			f, err := os.Create(reconstructOut)
			if err != nil {
				return err
			}
			if err := odrl.Encode(f, rec.Policy); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", reconstructOut, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info("policy written", "path", reconstructOut, "uid", rec.Policy.UID)
		}

		w := cmd.OutOrStdout()
		if done, err := printStructured(w, rec); done {
			return err
		}
		printEvaluation(w, rec.Evaluation)
		if reconstructOut == "" {
			fmt.Fprintln(w)
			return odrl.Encode(w, rec.Policy)
		}
		return nil
	},
}

func init() {
	reconstructFlags.register(reconstructCmd)
	reconstructCmd.Flags().StringVarP(&reconstructOut, "output", "o", "", "write the ODRL JSON-LD document to a file")
}
