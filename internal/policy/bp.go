package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/odrlfrag/internal/fragment"
	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// DirectiveKind selects the process-level pass.
type DirectiveKind string

const (
	DirectiveNone     DirectiveKind = "none"
	DirectiveGenerate DirectiveKind = "generate"
	DirectiveUpload   DirectiveKind = "upload"
)

// BP template names accepted by generate:<name>.
const (
	BPStandard      = "standard"
	BPFinancial     = "financial"
	BPHealthcare    = "healthcare"
	BPManufacturing = "manufacturing"
	BPCustom        = "custom"
)

// BPTemplateNames lists the generate:<name> templates in display order.
var BPTemplateNames = []string{BPStandard, BPFinancial, BPHealthcare, BPManufacturing, BPCustom}

// Directive is a parsed process-level policy directive.
type Directive struct {
	Kind     DirectiveKind
	Template string
	Ruleset  string
}

func (d Directive) String() string {
	switch d.Kind {
	case DirectiveGenerate:
		return "generate:" + d.Template
	case DirectiveUpload:
		return "upload:" + d.Ruleset
	}
	return string(DirectiveNone)
}

// ParseDirective parses none, generate:<template> or upload:<ruleset>. An
// empty string means none.
func ParseDirective(s string) (Directive, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == string(DirectiveNone) {
		return Directive{Kind: DirectiveNone}, nil
	}
	kind, arg, ok := strings.Cut(s, ":")
	if !ok || arg == "" {
		return Directive{}, &model.ConfigurationError{Field: "bp_policy", Value: s, Reason: "expected none, generate:<template> or upload:<ruleset>"}
	}
	switch DirectiveKind(kind) {
	case DirectiveGenerate:
		if _, ok := bpTemplates[arg]; !ok {
			return Directive{}, &model.ConfigurationError{
				Field:  "bp_policy",
				Value:  s,
				Reason: "unknown template, expected one of " + strings.Join(BPTemplateNames, ", "),
			}
		}
		return Directive{Kind: DirectiveGenerate, Template: arg}, nil
	case DirectiveUpload:
		return Directive{Kind: DirectiveUpload, Ruleset: arg}, nil
	}
	return Directive{}, &model.ConfigurationError{Field: "bp_policy", Value: s, Reason: fmt.Sprintf("unknown directive %q", kind)}
}

const odrlContext = "http://www.w3.org/ns/odrl/2/"

func bpConstraint(left string, op model.Operator, right string) []model.BPConstraint {
	return []model.BPConstraint{{LeftOperand: left, Operator: op, RightOperand: right}}
}

var bpTemplates = map[string]model.BPPolicy{
	BPStandard: {
		Context: odrlContext,
		Type:    "Policy",
		UID:     "bp-policy-standard",
		Profile: "http://example.org/bp-policies",
		Permission: []model.BPRule{
			{Target: "bp:process", Action: "execute", Assignee: "role:process-owner", Constraint: bpConstraint("dateTime", model.OpGteq, "business-hours")},
			{Target: "bp:activities", Action: "read", Assignee: "role:participant"},
		},
		Prohibition: []model.BPRule{
			{Target: "bp:process", Action: "modify", Assignee: "role:external-user"},
		},
		Obligation: []model.BPRule{
			{Target: "bp:process", Action: "log", Assignee: "system:audit", Constraint: bpConstraint("event", model.OpEq, "process-start")},
		},
	},
	BPFinancial: {
		Context: odrlContext,
		Type:    "Policy",
		UID:     "bp-policy-financial",
		Profile: "http://example.org/financial-policies",
		Permission: []model.BPRule{
			{Target: "bp:financial-process", Action: "execute", Assignee: "role:financial-officer", Constraint: bpConstraint("amount", model.OpLteq, "approval-limit")},
		},
		Prohibition: []model.BPRule{
			{Target: "bp:sensitive-data", Action: "export", Assignee: "role:external-auditor"},
			{Target: "bp:financial-process", Action: "execute", Assignee: "role:unauthorized", Constraint: bpConstraint("location", model.OpNeq, "approved-jurisdiction")},
		},
		Obligation: []model.BPRule{
			{Target: "bp:transaction", Action: "audit-log", Assignee: "system:compliance"},
			{Target: "bp:approval", Action: "notify", Assignee: "role:supervisor", Constraint: bpConstraint("amount", model.OpGt, "10000")},
		},
	},
	BPHealthcare: {
		Context: odrlContext,
		Type:    "Policy",
		UID:     "bp-policy-healthcare",
		Profile: "http://example.org/healthcare-policies",
		Permission: []model.BPRule{
			{Target: "bp:patient-data", Action: "access", Assignee: "role:healthcare-provider", Constraint: bpConstraint("purpose", model.OpEq, "treatment")},
		},
		Prohibition: []model.BPRule{
			{Target: "bp:patient-data", Action: "share", Assignee: "role:third-party", Constraint: bpConstraint("consent", model.OpEq, "false")},
		},
		Obligation: []model.BPRule{
			{Target: "bp:patient-data", Action: "encrypt", Assignee: "system:security"},
			{Target: "bp:access-log", Action: "maintain", Assignee: "system:audit", Constraint: bpConstraint("retention-period", model.OpEq, "7-years")},
		},
	},
	BPManufacturing: {
		Context: odrlContext,
		Type:    "Policy",
		UID:     "bp-policy-manufacturing",
		Profile: "http://example.org/manufacturing-policies",
		Permission: []model.BPRule{
			{Target: "bp:production-line", Action: "operate", Assignee: "role:operator", Constraint: bpConstraint("certification", model.OpEq, "valid")},
		},
		Prohibition: []model.BPRule{
			{Target: "bp:safety-system", Action: "override", Assignee: "role:operator"},
			{Target: "bp:production-line", Action: "operate", Constraint: bpConstraint("safety-check", model.OpEq, "failed")},
		},
		Obligation: []model.BPRule{
			{Target: "bp:quality-check", Action: "perform", Assignee: "role:quality-inspector", Constraint: bpConstraint("frequency", model.OpEq, "every-batch")},
		},
	},
	BPCustom: {
		Context: odrlContext,
		Type:    "Policy",
		UID:     "bp-policy-custom",
		Profile: "http://example.org/custom-policies",
		Permission: []model.BPRule{
			{Target: "bp:process", Action: "execute", Assignee: "role:authorized-user"},
		},
		Prohibition: []model.BPRule{
			{Target: "bp:process", Action: "bypass", Assignee: "role:any"},
		},
		Obligation: []model.BPRule{
			{Target: "bp:process", Action: "monitor", Assignee: "system:monitoring"},
		},
	},
}

// BPTemplate returns a deep copy of the named process-level template.
func BPTemplate(name string) (*model.BPPolicy, bool) {
	t, ok := bpTemplates[name]
	if !ok {
		return nil, false
	}
	cp := t
	cp.Permission = copyBPRules(t.Permission)
	cp.Prohibition = copyBPRules(t.Prohibition)
	cp.Obligation = copyBPRules(t.Obligation)
	return &cp, true
}

func copyBPRules(in []model.BPRule) []model.BPRule {
	if in == nil {
		return nil
	}
	out := make([]model.BPRule, len(in))
	for i, r := range in {
		out[i] = r
		out[i].Constraint = append([]model.BPConstraint(nil), r.Constraint...)
	}
	return out
}

// BPResult is the outcome of the process-level pass.
type BPResult struct {
	Policy *model.BPPolicy
	// Source is the template name, "upload", or "custom".
	Source string
	// Actual is llm when the collaborator produced a custom policy.
	Actual         model.Source
	FallbackReason string
}

// ResolveBP runs the process-level pass for d. uploaded is the already
// parsed rule set for upload directives. It returns nil for DirectiveNone.
func (g *Generator) ResolveBP(ctx context.Context, d Directive, uploaded *model.BPPolicy) (*BPResult, error) {
	switch d.Kind {
	case DirectiveNone, "":
		return nil, nil
	case DirectiveUpload:
		if uploaded == nil {
			return nil, &model.ConfigurationError{Field: "bp_policy", Value: d.String(), Reason: "uploaded rule set was not provided"}
		}
		if err := model.ValidateBPPolicy(uploaded); err != nil {
			return nil, &model.ConfigurationError{Field: "bp_policy", Value: d.String(), Reason: err.Error()}
		}
		return &BPResult{Policy: uploaded, Source: "upload", Actual: model.SourceTemplate}, nil
	case DirectiveGenerate:
		if d.Template == BPCustom {
			return g.customBP(ctx), nil
		}
		p, ok := BPTemplate(d.Template)
		if !ok {
			return nil, &model.ConfigurationError{Field: "bp_policy", Value: d.String(), Reason: "unknown template"}
		}
		return &BPResult{Policy: p, Source: d.Template, Actual: model.SourceTemplate}, nil
	}
	return nil, &model.ConfigurationError{Field: "bp_policy", Value: d.String(), Reason: "unknown directive"}
}

// customBP asks the collaborator for process-wide rules and falls back to
// the static custom template.
func (g *Generator) customBP(ctx context.Context) *BPResult {
	res := &BPResult{Source: BPCustom, Actual: model.SourceTemplate}
	req := Request{ProcessName: g.idx.Model.Name}
	for _, a := range g.idx.Model.Activities {
		req.ProcessActivities = append(req.ProcessActivities, a.Name)
	}

	cands, err := g.call(ctx, req)
	if err == nil {
		var p *model.BPPolicy
		p, err = rulesToBP(cands)
		if err == nil {
			res.Policy = p
			res.Actual = model.SourceLLM
			return res
		}
	}
	res.FallbackReason = err.Error()
	g.logger.Warn("process-level policy fell back to the custom template", "reason", res.FallbackReason)
	res.Policy, _ = BPTemplate(BPCustom)
	return res
}

func rulesToBP(rules []model.PolicyRule) (*model.BPPolicy, error) {
	if len(rules) == 0 {
		return nil, ErrEmptyResponse
	}
	p := &model.BPPolicy{Context: odrlContext, Type: "Policy", UID: "bp-policy-custom"}
	for i, r := range rules {
		target := r.TargetActivityID
		if target == "" {
			target = "bp:process"
			r.TargetActivityID = target
		}
		if err := model.ValidateRule(&r); err != nil {
			return nil, fmt.Errorf("malformed collaborator output: candidate %d: %w", i, err)
		}
		br := model.BPRule{Target: target, Action: r.Action, Assignee: r.Assignee}
		for _, c := range r.Constraints {
			br.Constraint = append(br.Constraint, model.BPConstraint{LeftOperand: c.Type, Operator: c.Operator, RightOperand: c.Value})
		}
		switch r.Type {
		case model.RulePermission:
			p.Permission = append(p.Permission, br)
		case model.RuleProhibition:
			p.Prohibition = append(p.Prohibition, br)
		case model.RuleObligation:
			p.Obligation = append(p.Obligation, br)
		}
	}
	return p, nil
}

// AnyAssignee is the assignee given to process-level rules that name none.
const AnyAssignee = "role:any"

// processWide targets apply to every activity.
var processWide = map[string]bool{"process": true, "activities": true, "*": true}

// bpCategories maps process-level asset names to activity-name stems.
var bpCategories = map[string][]string{
	"approval":          {"approv", "review", "authoriz", "sign"},
	"transaction":       {"pay", "invoice", "transfer", "transaction", "refund", "bill"},
	"financial-process": {"pay", "invoice", "transfer", "budget", "financ", "approv"},
	"sensitive-data":    {"data", "record", "store", "archiv", "register"},
	"patient-data":      {"patient", "diagnos", "treat", "admit", "record"},
	"access-log":        {"log", "audit", "access"},
	"production-line":   {"produc", "assembl", "manufactur", "operat", "machin"},
	"safety-system":     {"safety", "hazard", "emergenc"},
	"quality-check":     {"quality", "inspect", "check", "verif", "test"},
}

// resolveTarget maps a process-level target to activity ids in source order:
// an exact activity id, a process-wide asset, a known category, or the
// target's own words used as stems.
func resolveTarget(target string, idx *model.Index, owned func(string) bool) []string {
	if owned(target) {
		return []string{target}
	}
	name := strings.TrimPrefix(target, "bp:")
	if owned(name) {
		return []string{name}
	}
	var stems []string
	switch {
	case processWide[name]:
	case bpCategories[name] != nil:
		stems = bpCategories[name]
	default:
		stems = words(name)
	}
	var out []string
	for _, a := range idx.Model.Activities {
		if !owned(a.ID) {
			continue
		}
		if stems == nil || matchesStems(words(a.Name), stems) {
			out = append(out, a.ID)
		}
	}
	return out
}

// placeBP converts process-level rules into activity rules keyed by target
// activity id. Rules that resolve to no activity produce a warning.
func placeBP(p *model.BPPolicy, source string, part *fragment.Partition, idx *model.Index) (map[string][]model.PolicyRule, []model.Warning) {
	if p == nil {
		return nil, nil
	}
	owned := func(id string) bool {
		_, ok := part.Owner(id)
		return ok
	}
	out := make(map[string][]model.PolicyRule)
	var warnings []model.Warning
	assigner := p.UID
	if assigner == "" {
		assigner = DefaultAssigner
	}
	for _, t := range model.RuleTypes {
		for _, br := range p.Rules(t) {
			targets := resolveTarget(br.Target, idx, owned)
			if len(targets) == 0 {
				warnings = append(warnings, model.Warning{
					Kind:    model.WarningBPUnplaced,
					Message: fmt.Sprintf("process-level %s %q on %s matched no activity", t, br.Action, br.Target),
				})
				continue
			}
			assignee := br.Assignee
			if assignee == "" {
				assignee = AnyAssignee
			}
			for _, aid := range targets {
				constraints := make([]model.Constraint, 0, len(br.Constraint))
				for _, c := range br.Constraint {
					constraints = append(constraints, model.Constraint{Type: c.LeftOperand, Operator: c.Operator, Value: c.RightOperand})
				}
				out[aid] = append(out[aid], model.PolicyRule{
					Type:             t,
					Action:           br.Action,
					Assigner:         assigner,
					Assignee:         assignee,
					TargetActivityID: aid,
					Constraints:      constraints,
					Origin:           model.OriginBPPolicy,
					BPSource:         source,
					BPTarget:         br.Target,
				})
			}
		}
	}
	return out, warnings
}
