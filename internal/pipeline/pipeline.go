// Package pipeline runs the analysis stages in order: configure, fragment,
// generate, check and summarize. Each stage is traced, timed and logged;
// a fatal error is returned as a *model.StageError naming the stage.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/odrlfrag/internal/checker"
	"github.com/alfredjeanlab/odrlfrag/internal/fragment"
	"github.com/alfredjeanlab/odrlfrag/internal/metrics"
	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/odrl"
	"github.com/alfredjeanlab/odrlfrag/internal/policy"
	"github.com/alfredjeanlab/odrlfrag/internal/telemetry"
)

const tracerName = "github.com/alfredjeanlab/odrlfrag/internal/pipeline"

// ProcessSummary identifies the analyzed process.
type ProcessSummary struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Activities int    `json:"activities" yaml:"activities"`
	Gateways   int    `json:"gateways" yaml:"gateways"`
	Events     int    `json:"events" yaml:"events"`
	Flows      int    `json:"flows" yaml:"flows"`
}

// BPSummary describes the process-level policy applied in a run.
type BPSummary struct {
	Directive      string       `json:"directive" yaml:"directive"`
	Source         string       `json:"source" yaml:"source"`
	Actual         model.Source `json:"actual" yaml:"actual"`
	FallbackReason string       `json:"fallback_reason,omitempty" yaml:"fallback_reason,omitempty"`
	Rules          int          `json:"rules" yaml:"rules"`
}

// Reconstruction is the recombined process-wide policy and its comparison
// with the process-level policy.
type Reconstruction struct {
	Policy     *model.BPPolicy `json:"policy" yaml:"policy"`
	Evaluation odrl.Report     `json:"evaluation" yaml:"evaluation"`
}

// Result is the output of one run. Every collection is an ordered slice, so
// encoding a Result is stable across runs on the same input.
type Result struct {
	Process        ProcessSummary             `json:"process" yaml:"process"`
	Strategy       model.Strategy             `json:"strategy" yaml:"strategy"`
	Mode           model.Mode                 `json:"mode" yaml:"mode"`
	Threshold      int                        `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	BP             *BPSummary                 `json:"bp_policy,omitempty" yaml:"bp_policy,omitempty"`
	Fragments      []model.Fragment           `json:"fragments" yaml:"fragments"`
	Dependencies   []model.FragmentDependency `json:"dependencies" yaml:"dependencies"`
	Rules          []model.FragmentRules      `json:"rules" yaml:"rules"`
	Provenance     []model.Provenance         `json:"provenance" yaml:"provenance"`
	Conflicts      []model.ConflictFinding    `json:"conflicts" yaml:"conflicts"`
	Metrics        metrics.Summary            `json:"metrics" yaml:"metrics"`
	Warnings       []model.Warning            `json:"warnings" yaml:"warnings"`
	Reconstruction *Reconstruction            `json:"reconstruction,omitempty" yaml:"reconstruction,omitempty"`
}

// Pipeline holds the collaborators shared by runs. It keeps no per-run
// state, so one Pipeline may serve concurrent runs.
type Pipeline struct {
	collab    policy.Collaborator
	templates []policy.TemplateEntry
	recorder  *telemetry.Recorder
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCollaborator sets the collaborator used in llm mode and for custom
// process-level policies.
func WithCollaborator(c policy.Collaborator) Option {
	return func(p *Pipeline) { p.collab = c }
}

// WithTemplates replaces the built-in rule table.
func WithTemplates(t []policy.TemplateEntry) Option {
	return func(p *Pipeline) { p.templates = t }
}

// WithRecorder records run metrics in r.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTracer sets the tracer; the default comes from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run analyzes m with a default Pipeline.
func Run(ctx context.Context, m *model.ProcessModel, opts Options) (*Result, error) {
	return New().Run(ctx, m, opts)
}

// Run executes every stage against m. m is read, never modified.
func (p *Pipeline) Run(ctx context.Context, m *model.ProcessModel, opts Options) (res *Result, err error) {
	opts = opts.withDefaults()
	ctx, span := p.tracer.Start(ctx, "odrlfrag.run", trace.WithAttributes(
		attribute.String("odrlfrag.strategy", string(opts.Strategy)),
		attribute.String("odrlfrag.mode", string(opts.Mode)),
	))
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		p.recorder.RecordRun(opts.Strategy, opts.Mode, status)
		span.End()
	}()

	if m != nil {
		span.SetAttributes(attribute.String("odrlfrag.process_id", m.ID))
	}
	res = &Result{Strategy: opts.Strategy, Mode: opts.Mode, Threshold: opts.Threshold}

	var (
		gen  *policy.Generator
		bp   *policy.BPResult
		part *fragment.Partition
		out  *policy.Output
	)

	err = p.stage(ctx, model.StageConfigure, func(ctx context.Context) error {
		if m == nil {
			return &model.ModelError{Reason: "no process model"}
		}
		if err := checkOptions(opts); err != nil {
			return err
		}
		if err := fragment.CheckOptions(fragment.Options{Strategy: opts.Strategy, Threshold: opts.Threshold}); err != nil {
			return err
		}
		d, err := policy.ParseDirective(opts.BPPolicy)
		if err != nil {
			return err
		}
		genOpts := []policy.Option{policy.WithTimeout(opts.LLMTimeout), policy.WithLogger(p.logger)}
		if p.collab != nil {
			genOpts = append(genOpts, policy.WithCollaborator(p.collab))
		}
		if p.templates != nil {
			genOpts = append(genOpts, policy.WithTemplates(p.templates))
		}
		gen = policy.NewGenerator(m, genOpts...)

		bp, err = gen.ResolveBP(ctx, d, opts.UploadedPolicy)
		if err != nil {
			return err
		}
		if bp != nil {
			res.BP = &BPSummary{
				Directive:      d.String(),
				Source:         bp.Source,
				Actual:         bp.Actual,
				FallbackReason: bp.FallbackReason,
				Rules:          bp.Policy.RuleCount(),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Process = ProcessSummary{
		ID:         m.ID,
		Name:       m.Name,
		Activities: len(m.Activities),
		Gateways:   len(m.Gateways),
		Events:     len(m.Events),
		Flows:      len(m.Flows),
	}

	err = p.stage(ctx, model.StageFragment, func(ctx context.Context) error {
		var err error
		part, err = fragment.Fragment(m, fragment.Options{Strategy: opts.Strategy, Threshold: opts.Threshold})
		if err != nil {
			return err
		}
		res.Fragments = part.Fragments
		res.Dependencies = nonNil(part.Dependencies)
		res.Warnings = append(res.Warnings, part.Warnings...)
		p.recorder.RecordFragments(len(part.Fragments))
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("odrlfrag.fragments", len(part.Fragments)),
			attribute.Int("odrlfrag.dependencies", len(part.Dependencies)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, model.StageGenerate, func(ctx context.Context) error {
		in := policy.Input{Mode: opts.Mode}
		if bp != nil {
			in.BP = bp.Policy
			in.BPSource = bp.Source
		}
		var err error
		out, err = gen.GenerateAll(ctx, part, in)
		if err != nil {
			return err
		}
		res.Rules = out.Rules
		res.Provenance = out.Provenance
		res.Warnings = append(res.Warnings, out.Warnings...)
		p.recorder.RecordRules(out.Rules)
		p.recorder.RecordFallbacks(out.Provenance)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, model.StageCheck, func(ctx context.Context) error {
		var copts []checker.Option
		if len(opts.RoleHierarchy) > 0 {
			copts = append(copts, checker.WithRoleHierarchy(opts.RoleHierarchy))
		}
		res.Conflicts = nonNil(checker.New(copts...).Check(res.Rules, res.Dependencies))
		p.recorder.RecordConflicts(res.Conflicts)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("odrlfrag.conflicts", len(res.Conflicts)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, model.StageSummarize, func(ctx context.Context) error {
		res.Metrics = metrics.Summarize(res.Fragments, res.Rules, res.Conflicts)
		if opts.Reconstruct {
			var original *model.BPPolicy
			if bp != nil {
				original = bp.Policy
			}
			recon := odrl.Reconstruct(m.ID, res.Rules)
			res.Reconstruction = &Reconstruction{Policy: recon, Evaluation: odrl.Evaluate(original, recon)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Warnings = nonNil(res.Warnings)
	p.logger.Info("analysis complete",
		"process", m.ID,
		"strategy", opts.Strategy,
		"mode", opts.Mode,
		"fragments", res.Metrics.TotalFragments,
		"rules", res.Metrics.TotalRules,
		"conflicts", res.Metrics.TotalConflicts,
	)
	return res, nil
}

// stage runs fn inside a span, records its duration, and wraps any error
// with the stage name.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &model.StageError{Stage: name, Err: err}
	}
	ctx, span := p.tracer.Start(ctx, "odrlfrag."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	p.recorder.ObserveStage(name, elapsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("stage failed", "stage", name, "error", err)
		return &model.StageError{Stage: name, Err: err}
	}
	p.logger.Info("stage complete", "stage", name, "duration", elapsed)
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
