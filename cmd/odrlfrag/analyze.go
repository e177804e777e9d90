package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/odrlfrag/internal/bpmn"
	"github.com/alfredjeanlab/odrlfrag/internal/config"
	"github.com/alfredjeanlab/odrlfrag/internal/events"
	"github.com/alfredjeanlab/odrlfrag/internal/idgen"
	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/pipeline"
	"github.com/alfredjeanlab/odrlfrag/internal/policy"
	"github.com/alfredjeanlab/odrlfrag/internal/store"
	"github.com/alfredjeanlab/odrlfrag/internal/telemetry"
)

// analysisFlags are the per-run overrides shared by analyze and reconstruct.
type analysisFlags struct {
	strategy   string
	threshold  int
	mode       string
	bpPolicy   string
	policyFile string
	llmTimeout time.Duration
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.strategy, "strategy", "s", "", "fragmentation strategy: activity, gateway or hybrid")
	cmd.Flags().IntVarP(&f.threshold, "threshold", "t", 0, "hybrid fragment size threshold")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "rule generation mode: template or llm")
	cmd.Flags().StringVar(&f.bpPolicy, "bp-policy", "", "process-level policy: none, generate:<template> or upload:<name>")
	cmd.Flags().StringVar(&f.policyFile, "policy-file", "", "process-level ODRL policy (YAML/JSON) for upload:<name>")
	cmd.Flags().DurationVar(&f.llmTimeout, "llm-timeout", 0, "per-call timeout for the rule-generation service")
}

// options merges config defaults with the flags the user set.
func (f *analysisFlags) options(cmd *cobra.Command, c *config.Config) (pipeline.Options, error) {
	opts := pipeline.Options{
		Strategy:      model.Strategy(c.Strategy),
		Threshold:     c.Threshold,
		Mode:          model.Mode(c.Mode),
		BPPolicy:      c.BPPolicy,
		LLMTimeout:    c.LLMTimeout,
		RoleHierarchy: c.RoleHierarchy,
	}
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		opts.Strategy = model.Strategy(f.strategy)
	}
	if flags.Changed("threshold") {
		opts.Threshold = f.threshold
	}
	if flags.Changed("mode") {
		opts.Mode = model.Mode(f.mode)
	}
	if flags.Changed("bp-policy") {
		opts.BPPolicy = f.bpPolicy
	}
	if flags.Changed("llm-timeout") {
		opts.LLMTimeout = f.llmTimeout
	}

	if f.policyFile != "" {
		p, err := bpmn.LoadPolicy(f.policyFile)
		if err != nil {
			return opts, err
		}
		opts.UploadedPolicy = p
		// A file without an explicit upload directive names the ruleset
		// after itself.
		if !strings.HasPrefix(opts.BPPolicy, string(policy.DirectiveUpload)+":") {
			base := filepath.Base(f.policyFile)
			opts.BPPolicy = string(policy.DirectiveUpload) + ":" + strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return opts, nil
}

var analyzeFlags analysisFlags

var (
	analyzeNoSave   bool
	analyzeNoExport bool
	analyzeRecon    bool
)

var analyzeCmd = &cobra.Command{
	Use:     "analyze <process.bpmn|process.yaml>",
	Short:   "Fragment a process, generate its policies and check them",
	GroupID: "analysis",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := analyzeFlags.options(cmd, cfg)
		if err != nil {
			return err
		}
		opts.Reconstruct = analyzeRecon

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		run, runErr := runAnalysis(ctx, args[0], opts, true)
		if run == nil || run.Result == nil {
			return runErr
		}
		if err := printAnalysis(cmd.OutOrStdout(), run); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	analyzeFlags.register(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeRecon, "reconstruct", false, "recombine fragment rules and compare with the process-level policy")
	analyzeCmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "do not store the analysis even when a database is configured")
	analyzeCmd.Flags().BoolVar(&analyzeNoExport, "no-export", false, "skip configured export destinations")
}

// analysisRun is one analysis and the id it was published, stored and
// exported under.
type analysisRun struct {
	RunID  string           `json:"run_id" yaml:"run_id"`
	Result *pipeline.Result `json:"result" yaml:"result"`
}

// runAnalysis loads the model and runs the pipeline. With outputs set, the
// outcome is also published, stored and exported as configured; failures
// there are logged and returned joined, alongside a usable run.
func runAnalysis(ctx context.Context, path string, opts pipeline.Options, outputs bool) (*analysisRun, error) {
	runID, err := idgen.NewRunID()
	if err != nil {
		return nil, err
	}
	log := logger.With("run_id", runID)

	m, err := bpmn.Load(path)
	if err != nil {
		return nil, err
	}

	recorder := telemetry.NewRecorder()
	defer func() {
		if cfg.MetricsTextfile == "" {
			return
		}
		if err := recorder.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Warn("metrics textfile not written", "path", cfg.MetricsTextfile, "err", err)
		}
	}()

	p := pipeline.New(
		pipeline.WithCollaborator(newCollaborator(cfg)),
		pipeline.WithRecorder(recorder),
		pipeline.WithLogger(log),
	)

	var pub events.Publisher = events.Discard{}
	if outputs {
		if pub, err = newPublisher(cfg); err != nil {
			log.Warn("events disabled", "err", err)
			pub = events.Discard{}
		}
	}
	defer pub.Close()

	res, err := p.Run(ctx, m, opts)
	if err != nil {
		failed := events.AnalysisFailed{RunID: runID, ProcessID: m.ID, Error: err.Error(), FailedAt: time.Now().UTC()}
		var se *model.StageError
		if errors.As(err, &se) {
			failed.Stage = se.Stage
		}
		publish(ctx, pub, failed)
		return nil, err
	}
	run := &analysisRun{RunID: runID, Result: res}
	if !outputs {
		return run, nil
	}

	a, err := store.NewAnalysis(runID, res)
	if err != nil {
		return run, err
	}
	publish(ctx, pub, events.AnalysisCompleted{
		RunID:       runID,
		ProcessID:   a.ProcessID,
		ProcessName: a.ProcessName,
		Strategy:    a.Strategy,
		Mode:        a.Mode,
		Fragments:   a.Fragments,
		Rules:       a.Rules,
		Conflicts:   a.Conflicts,
		Fallbacks:   a.Fallbacks,
		CompletedAt: time.Now().UTC(),
	})
	if len(res.Conflicts) > 0 {
		publish(ctx, pub, events.ConflictsDetected{
			RunID:     runID,
			ProcessID: a.ProcessID,
			Conflicts: res.Conflicts,
		})
	}

	var errs []error
	if cfg.DatabaseURL != "" && !analyzeNoSave {
		if err := saveAnalysis(ctx, a); err != nil {
			log.Error("analysis not stored", "err", err)
			errs = append(errs, err)
		}
	}
	if !analyzeNoExport {
		exp, err := newExporter(ctx, cfg)
		switch {
		case err != nil:
			log.Error("export not configured", "err", err)
			errs = append(errs, err)
		case exp != nil:
			if _, err := exp.Export(ctx, runID, res); err != nil {
				errs = append(errs, fmt.Errorf("export: %w", err))
			}
		}
	}
	return run, errors.Join(errs...)
}

func saveAnalysis(ctx context.Context, a *store.Analysis) error {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.SaveAnalysis(ctx, a); err != nil {
		return fmt.Errorf("save analysis %s: %w", a.ProcessID, err)
	}
	logger.Debug("analysis stored", "process_id", a.ProcessID, "run_id", a.RunID)
	return nil
}

// publish logs instead of failing: events are advisory.
func publish(ctx context.Context, pub events.Publisher, ev events.Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		logger.Warn("event not published", "topic", ev.Topic(), "err", err)
	}
}
