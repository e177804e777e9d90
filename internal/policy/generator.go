// Package policy derives ODRL-style rules for the activities of a
// fragmented process, from a fixed template table or an external
// collaborator, plus process-level and inter-fragment rules.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alfredjeanlab/odrlfrag/internal/fragment"
	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// DefaultTimeout bounds one collaborator call.
const DefaultTimeout = 30 * time.Second

// Generator produces rules for one process model. It holds no per-run state
// and is safe for concurrent use if its collaborator is.
type Generator struct {
	idx       *model.Index
	templates []TemplateEntry
	collab    Collaborator
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithCollaborator sets the external rule source used in llm mode.
func WithCollaborator(c Collaborator) Option {
	return func(g *Generator) { g.collab = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithTemplates replaces the built-in template table.
func WithTemplates(t []TemplateEntry) Option {
	return func(g *Generator) { g.templates = t }
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator for m.
func NewGenerator(m *model.ProcessModel, opts ...Option) *Generator {
	g := &Generator{
		idx:       model.NewIndex(m),
		templates: DefaultTemplates,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate returns the rules for one activity of frag, ordered permission,
// prohibition, obligation, together with the path that produced them. In
// llm mode every collaborator failure falls back to the template path.
func (g *Generator) Generate(ctx context.Context, frag *model.Fragment, activityID string, mode model.Mode) ([]model.PolicyRule, model.Provenance, error) {
	prov := model.Provenance{FragmentID: frag.ID, ActivityID: activityID, Requested: mode}
	if !mode.IsValid() {
		return nil, prov, &model.ConfigurationError{Field: "mode", Value: string(mode), Reason: "must be template or llm"}
	}
	a, ok := g.idx.Activity(activityID)
	if !ok || !frag.Contains(activityID) {
		return nil, prov, &model.ModelError{NodeID: activityID, Reason: fmt.Sprintf("activity is not part of fragment %s", frag.ID)}
	}

	if mode == model.ModeLLM {
		rules, err := g.fromCollaborator(ctx, frag, a)
		if err == nil {
			prov.Actual = model.SourceLLM
			return rules, prov, nil
		}
		prov.FallbackReason = err.Error()
		g.logger.Warn("rule generation fell back to templates",
			"fragment", frag.ID, "activity", activityID, "reason", prov.FallbackReason)
	}

	rules, entry := g.fromTemplate(frag, a)
	prov.Actual = model.SourceTemplate
	prov.TemplateEntry = entry
	return rules, prov, nil
}

func (g *Generator) fromTemplate(frag *model.Fragment, a model.Activity) ([]model.PolicyRule, string) {
	entry, ok := Match(g.templates, a)
	if !ok {
		return nil, ""
	}
	var rules []model.PolicyRule
	for _, rt := range entry.Rules {
		rules = append(rules, model.PolicyRule{
			Type:             rt.Type,
			Action:           rt.Action,
			Assigner:         DefaultAssigner,
			Assignee:         rt.Assignee,
			TargetActivityID: a.ID,
			Constraints:      append([]model.Constraint{}, rt.Constraints...),
			FragmentID:       frag.ID,
			Origin:           model.OriginTemplate,
		})
	}
	if entry.OutcomeRole != "" {
		for _, fi := range g.idx.Incoming[a.ID] {
			f := g.idx.Flow(fi)
			gw, ok := g.idx.Gateway(f.SourceRef)
			if !ok || !gw.Kind.IsDecision() {
				continue
			}
			outcome := f.Label
			if outcome == "" {
				outcome = f.ID
			}
			rules = append(rules, model.PolicyRule{
				Type:             model.RulePermission,
				Action:           "execute",
				Assigner:         DefaultAssigner,
				Assignee:         entry.OutcomeRole,
				TargetActivityID: a.ID,
				Constraints:      []model.Constraint{{Type: "outcome", Operator: model.OpEq, Value: outcome}},
				FragmentID:       frag.ID,
				Origin:           model.OriginTemplate,
			})
		}
	}
	sortByRank(rules)
	return rules, entry.Name
}

type reply struct {
	rules []model.PolicyRule
	err   error
}

// call runs the collaborator under the generator's timeout. It returns as
// soon as the deadline passes even if the collaborator ignores ctx.
func (g *Generator) call(ctx context.Context, req Request) ([]model.PolicyRule, error) {
	if g.collab == nil {
		return nil, ErrNoCollaborator
	}
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- reply{err: fmt.Errorf("collaborator panicked: %v", p)}
			}
		}()
		rules, err := g.collab.GenerateRules(cctx, req)
		ch <- reply{rules: rules, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("collaborator timed out after %s", g.timeout)
			}
			return nil, fmt.Errorf("collaborator failed: %w", r.err)
		}
		return r.rules, nil
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("collaborator timed out after %s", g.timeout)
		}
		return nil, fmt.Errorf("collaborator call cancelled: %w", cctx.Err())
	}
}

func (g *Generator) fromCollaborator(ctx context.Context, frag *model.Fragment, a model.Activity) ([]model.PolicyRule, error) {
	before, after := g.idx.NeighborActivities(a.ID)
	req := Request{
		ProcessName:        g.idx.Model.Name,
		FragmentID:         frag.ID,
		ActivityID:         a.ID,
		ActivityName:       a.Name,
		ActivityType:       a.Type,
		Predecessors:       g.names(before),
		Successors:         g.names(after),
		FragmentActivities: g.names(frag.Activities),
	}
	cands, err := g.call(ctx, req)
	if err != nil {
		return nil, err
	}
	rules, err := acceptCandidates(cands, req, frag.ID)
	if err != nil {
		return nil, fmt.Errorf("malformed collaborator output: %w", err)
	}
	sortByRank(rules)
	return rules, nil
}

func (g *Generator) names(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if a, ok := g.idx.Activity(id); ok && a.Name != "" {
			out = append(out, a.Name)
		} else {
			out = append(out, id)
		}
	}
	return out
}

func sortByRank(rules []model.PolicyRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Type.Rank() < rules[j].Type.Rank()
	})
}

// Input selects how GenerateAll produces rules.
type Input struct {
	Mode model.Mode
	// BP is the process-level policy to merge, or nil.
	BP *model.BPPolicy
	// BPSource names where BP came from (template name, "upload", "custom").
	BPSource string
}

// Output is the generated rule set of one run.
type Output struct {
	Rules      []model.FragmentRules
	Provenance []model.Provenance
	Warnings   []model.Warning
}

// GenerateAll generates rules for every activity of every fragment, merges
// process-level and inter-fragment rules, and assigns rule ids. Rules are
// ordered by fragment, then activity, then rule type.
func (g *Generator) GenerateAll(ctx context.Context, part *fragment.Partition, in Input) (*Output, error) {
	out := &Output{}

	bpRules, warnings := placeBP(in.BP, in.BPSource, part, g.idx)
	out.Warnings = append(out.Warnings, warnings...)
	depRules := dependencyRules(part)

	for fi := range part.Fragments {
		frag := &part.Fragments[fi]
		var rules []model.PolicyRule
		for _, aid := range frag.Activities {
			own, prov, err := g.Generate(ctx, frag, aid, in.Mode)
			if err != nil {
				return nil, err
			}
			out.Provenance = append(out.Provenance, prov)
			if prov.Fallback() {
				out.Warnings = append(out.Warnings, model.Warning{
					Kind:    model.WarningFallback,
					Message: fmt.Sprintf("activity %s in %s used templates: %s", aid, frag.ID, prov.FallbackReason),
					NodeIDs: []string{aid},
				})
			}

			for _, r := range bpRules[aid] {
				r.FragmentID = frag.ID
				own = append(own, r)
			}
			for _, r := range depRules[frag.ID] {
				if r.TargetActivityID == aid {
					own = append(own, r)
				}
			}
			sortByRank(own)
			rules = append(rules, own...)
		}
		for _, r := range depRules[frag.ID] {
			if !frag.Contains(r.TargetActivityID) {
				rules = append(rules, r)
			}
		}
		for i := range rules {
			rules[i].ID = fmt.Sprintf("%s/r%d", frag.ID, i+1)
		}
		if rules == nil {
			rules = []model.PolicyRule{}
		}
		out.Rules = append(out.Rules, model.FragmentRules{FragmentID: frag.ID, Rules: rules})
	}
	return out, nil
}

// ProcessEngine is the assignee of inter-fragment rules.
const ProcessEngine = "system:process-engine"

func completed(fragmentID string) string {
	return fragmentID + ":completed"
}

// dependencyRules derives the hand-off rules for every dependency, keyed by
// owning fragment id. The upstream fragment gets a handoff obligation on its
// exit activity and a permission to start the downstream activity once it
// has completed. The downstream fragment gets one prohibition per entry
// activity that holds until some upstream fragment has completed.
func dependencyRules(part *fragment.Partition) map[string][]model.PolicyRule {
	out := make(map[string][]model.PolicyRule)
	seen := make(map[string]bool)
	prohibitionAt := make(map[string]int)

	add := func(key string, r model.PolicyRule) {
		if seen[key] {
			return
		}
		seen[key] = true
		out[r.FragmentID] = append(out[r.FragmentID], r)
	}

	for _, d := range part.Dependencies {
		for _, up := range d.Upstream() {
			add("handoff\x00"+up+"\x00"+d.ToFragmentID, model.PolicyRule{
				Type:             model.RuleObligation,
				Action:           "handoff",
				Assigner:         DefaultAssigner,
				Assignee:         ProcessEngine,
				TargetActivityID: up,
				Constraints:      []model.Constraint{},
				FragmentID:       d.FromFragmentID,
				PeerFragmentID:   d.ToFragmentID,
				Origin:           model.OriginDependency,
			})
		}
		add("permit\x00"+d.FromFragmentID+"\x00"+d.ToActivityID, model.PolicyRule{
			Type:             model.RulePermission,
			Action:           "execute",
			Assigner:         DefaultAssigner,
			Assignee:         ProcessEngine,
			TargetActivityID: d.ToActivityID,
			Constraints:      []model.Constraint{{Type: "dependency", Operator: model.OpEq, Value: completed(d.FromFragmentID)}},
			FragmentID:       d.FromFragmentID,
			PeerFragmentID:   d.ToFragmentID,
			Origin:           model.OriginDependency,
		})

		guard := model.Constraint{Type: "dependency", Operator: model.OpNeq, Value: completed(d.FromFragmentID)}
		if i, ok := prohibitionAt[d.ToActivityID]; ok {
			r := &out[d.ToFragmentID][i]
			dup := false
			for _, c := range r.Constraints {
				if c == guard {
					dup = true
					break
				}
			}
			if !dup {
				r.Constraints = append(r.Constraints, guard)
			}
			continue
		}
		prohibitionAt[d.ToActivityID] = len(out[d.ToFragmentID])
		out[d.ToFragmentID] = append(out[d.ToFragmentID], model.PolicyRule{
			Type:             model.RuleProhibition,
			Action:           "execute",
			Assigner:         DefaultAssigner,
			Assignee:         ProcessEngine,
			TargetActivityID: d.ToActivityID,
			Constraints:      []model.Constraint{guard},
			FragmentID:       d.ToFragmentID,
			PeerFragmentID:   d.FromFragmentID,
			Origin:           model.OriginDependency,
		})
	}
	return out
}
