package policy

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/odrlfrag/internal/fragment"
	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/model/modeltest"
)

func partition(t *testing.T, m *model.ProcessModel, s model.Strategy) *fragment.Partition {
	t.Helper()
	p, err := fragment.Fragment(m, fragment.Options{Strategy: s})
	if err != nil {
		t.Fatalf("fragment.Fragment: %v", err)
	}
	return p
}

func mustLookup(t *testing.T, p *fragment.Partition, id string) *model.Fragment {
	t.Helper()
	f, ok := p.Lookup(id)
	if !ok {
		t.Fatalf("fragment %s not found", id)
	}
	return f
}

func TestMatch(t *testing.T) {
	for _, tc := range []struct {
		name string
		typ  model.ActivityType
		want string
	}{
		{"Approve Request", model.ActivityTask, "approval"},
		{"Review Contract", model.ActivityTask, "approval"},
		{"Reject Claim", model.ActivityTask, "rejection"},
		{"Process Payment", model.ActivityTask, "payment"},
		{"Verify Identity", model.ActivityTask, "verification"},
		{"Send Confirmation", model.ActivityTask, "notification"},
		{"Archive Documents", model.ActivityTask, "data"},
		{"Submit Request", model.ActivityTask, "default"},
		{"Handle Approval", model.ActivitySubprocess, "subprocess"},
		{"", model.ActivityTask, "default"},
	} {
		got, ok := Match(DefaultTemplates, model.Activity{ID: "x", Name: tc.name, Type: tc.typ})
		if !ok || got.Name != tc.want {
			t.Errorf("Match(%q, %s) = %q, want %q", tc.name, tc.typ, got.Name, tc.want)
		}
	}
}

func TestGenerate_TemplateReject(t *testing.T) {
	m := modeltest.ApprovalProcess()
	p := partition(t, m, model.StrategyGateway)
	g := NewGenerator(m)

	rules, prov, err := g.Generate(context.Background(), mustLookup(t, p, "gateway-3"), "reject", model.ModeTemplate)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if prov.Actual != model.SourceTemplate || prov.TemplateEntry != "rejection" {
		t.Errorf("provenance = %+v, want template/rejection", prov)
	}

	var notify, outcome bool
	lastRank := -1
	for _, r := range rules {
		if r.Type.Rank() < lastRank {
			t.Errorf("rule %s out of permission/prohibition/obligation order", r.Describe())
		}
		lastRank = r.Type.Rank()
		if r.Type == model.RuleObligation && r.Action == "notify" {
			notify = true
		}
		if r.Type == model.RulePermission && len(r.Constraints) == 1 && r.Constraints[0] == (model.Constraint{Type: "outcome", Operator: model.OpEq, Value: "No"}) {
			outcome = true
		}
		if r.FragmentID != "gateway-3" || r.TargetActivityID != "reject" || r.Origin != model.OriginTemplate {
			t.Errorf("rule %+v has wrong ownership", r)
		}
	}
	if !notify {
		t.Error("reject activity has no notify obligation")
	}
	if !outcome {
		t.Error("reject activity did not inherit the decision outcome permission")
	}
}

func TestGenerate_Errors(t *testing.T) {
	m := modeltest.ApprovalProcess()
	p := partition(t, m, model.StrategyGateway)
	g := NewGenerator(m)

	_, _, err := g.Generate(context.Background(), mustLookup(t, p, "gateway-1"), "reject", model.ModeTemplate)
	var me *model.ModelError
	if !errors.As(err, &me) {
		t.Errorf("foreign activity: err = %v, want ModelError", err)
	}
	_, _, err = g.Generate(context.Background(), mustLookup(t, p, "gateway-3"), "reject", "magic")
	var ce *model.ConfigurationError
	if !errors.As(err, &ce) {
		t.Errorf("bad mode: err = %v, want ConfigurationError", err)
	}
}

func TestGenerate_LLM(t *testing.T) {
	m := modeltest.ApprovalProcess()
	p := partition(t, m, model.StrategyGateway)
	frag := mustLookup(t, p, "gateway-1")

	var got Request
	collab := CollaboratorFunc(func(_ context.Context, req Request) ([]model.PolicyRule, error) {
		got = req
		return []model.PolicyRule{
			{Type: model.RuleObligation, Action: "log", Assignee: "system:audit"},
			{Type: model.RulePermission, Action: "execute", Assignee: "role:reviewer", TargetActivityID: "review"},
		}, nil
	})
	g := NewGenerator(m, WithCollaborator(collab))

	rules, prov, err := g.Generate(context.Background(), frag, "review", model.ModeLLM)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if prov.Actual != model.SourceLLM || prov.Fallback() {
		t.Errorf("provenance = %+v, want llm without fallback", prov)
	}
	if len(rules) != 2 || rules[0].Type != model.RulePermission {
		t.Fatalf("rules = %+v, want permission first", rules)
	}
	for _, r := range rules {
		if r.Origin != model.OriginLLM || r.FragmentID != "gateway-1" || r.TargetActivityID != "review" || r.Assigner != DefaultAssigner {
			t.Errorf("rule not normalized: %+v", r)
		}
	}

	if got.ActivityName != "Review Request" || got.ProcessName != "Purchase Approval" {
		t.Errorf("request = %+v", got)
	}
	if !reflect.DeepEqual(got.Predecessors, []string{"Submit Request"}) {
		t.Errorf("request predecessors = %v", got.Predecessors)
	}
	if !reflect.DeepEqual(got.Successors, []string{"Approve Request", "Reject Request"}) {
		t.Errorf("request successors = %v", got.Successors)
	}
	if !reflect.DeepEqual(got.FragmentActivities, []string{"Submit Request", "Review Request"}) {
		t.Errorf("request fragment activities = %v", got.FragmentActivities)
	}
}

func TestGenerate_LLMFallback(t *testing.T) {
	m := modeltest.ApprovalProcess()
	p := partition(t, m, model.StrategyGateway)
	frag := mustLookup(t, p, "gateway-2")

	want, _, err := NewGenerator(m).Generate(context.Background(), frag, "approve", model.ModeTemplate)
	if err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	for _, tc := range []struct {
		name   string
		collab Collaborator
		reason string
	}{
		{"none configured", nil, "no rule-generation collaborator"},
		{"error", CollaboratorFunc(func(context.Context, Request) ([]model.PolicyRule, error) {
			return nil, errors.New("rate limited")
		}), "rate limited"},
		{"empty", CollaboratorFunc(func(context.Context, Request) ([]model.PolicyRule, error) {
			return nil, nil
		}), "no rules"},
		{"bad rule type", CollaboratorFunc(func(context.Context, Request) ([]model.PolicyRule, error) {
			return []model.PolicyRule{{Type: "duty", Action: "execute", Assignee: "role:x"}}, nil
		}), "rule_type"},
		{"foreign target", CollaboratorFunc(func(context.Context, Request) ([]model.PolicyRule, error) {
			return []model.PolicyRule{{Type: model.RulePermission, Action: "execute", Assignee: "role:x", TargetActivityID: "reject"}}, nil
		}), "targets"},
		{"ignores deadline", CollaboratorFunc(func(context.Context, Request) ([]model.PolicyRule, error) {
			<-release
			return nil, nil
		}), "timed out"},
		{"honours deadline", CollaboratorFunc(func(ctx context.Context, _ Request) ([]model.PolicyRule, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), "timed out"},
		{"panics", CollaboratorFunc(func(context.Context, Request) ([]model.PolicyRule, error) {
			panic("boom")
		}), "panicked"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := []Option{WithTimeout(20 * time.Millisecond)}
			if tc.collab != nil {
				opts = append(opts, WithCollaborator(tc.collab))
			}
			g := NewGenerator(m, opts...)

			rules, prov, err := g.Generate(context.Background(), frag, "approve", model.ModeLLM)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if !prov.Fallback() || prov.Actual != model.SourceTemplate {
				t.Errorf("provenance = %+v, want template fallback", prov)
			}
			if !strings.Contains(prov.FallbackReason, tc.reason) {
				t.Errorf("FallbackReason = %q, want it to contain %q", prov.FallbackReason, tc.reason)
			}
			if !reflect.DeepEqual(rules, want) {
				t.Errorf("fallback rules differ from template rules:\n got %+v\nwant %+v", rules, want)
			}
		})
	}
}

func TestGenerateAll_Scenario(t *testing.T) {
	m := modeltest.ApprovalProcess()
	p := partition(t, m, model.StrategyGateway)
	g := NewGenerator(m)

	out, err := g.GenerateAll(context.Background(), p, Input{Mode: model.ModeTemplate})
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if len(out.Rules) != 3 {
		t.Fatalf("len(Rules) = %d, want 3", len(out.Rules))
	}
	if len(out.Provenance) != 4 {
		t.Errorf("len(Provenance) = %d, want 4", len(out.Provenance))
	}

	for _, fr := range out.Rules {
		for i, r := range fr.Rules {
			if want := fmt.Sprintf("%s/r%d", fr.FragmentID, i+1); r.ID != want {
				t.Errorf("rule id = %q, want %q", r.ID, want)
			}
			if r.FragmentID != fr.FragmentID {
				t.Errorf("rule %s owned by %s, listed under %s", r.ID, r.FragmentID, fr.FragmentID)
			}
		}
	}

	// gateway-1 hands off to both branches.
	var handoffs, permits int
	for _, r := range out.Rules[0].Rules {
		if r.Origin != model.OriginDependency {
			continue
		}
		switch r.Type {
		case model.RuleObligation:
			handoffs++
			if r.TargetActivityID != "review" {
				t.Errorf("handoff on %s, want review", r.TargetActivityID)
			}
		case model.RulePermission:
			permits++
		}
	}
	if handoffs != 2 || permits != 2 {
		t.Errorf("gateway-1 handoffs=%d permits=%d, want 2 and 2", handoffs, permits)
	}

	// The foreign-target permissions come after gateway-1's own activities.
	rules := out.Rules[0].Rules
	if last := rules[len(rules)-1]; last.TargetActivityID != "reject" || last.PeerFragmentID != "gateway-3" {
		t.Errorf("last gateway-1 rule = %s, want the permission on reject", last.Describe())
	}

	again, err := g.GenerateAll(context.Background(), p, Input{Mode: model.ModeTemplate})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, again) {
		t.Error("GenerateAll is not deterministic")
	}
}

func TestGenerateAll_FallbackMatchesTemplate(t *testing.T) {
	m := modeltest.ApprovalProcess()
	p := partition(t, m, model.StrategyActivity)

	tmpl, err := NewGenerator(m).GenerateAll(context.Background(), p, Input{Mode: model.ModeTemplate})
	if err != nil {
		t.Fatal(err)
	}
	failing := CollaboratorFunc(func(context.Context, Request) ([]model.PolicyRule, error) {
		return nil, errors.New("unavailable")
	})
	llm, err := NewGenerator(m, WithCollaborator(failing)).GenerateAll(context.Background(), p, Input{Mode: model.ModeLLM})
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(tmpl.Rules, llm.Rules) {
		t.Error("llm mode with a failing collaborator produced different rules")
	}
	for _, prov := range llm.Provenance {
		if !prov.Fallback() {
			t.Errorf("provenance %+v not marked as fallback", prov)
		}
	}
	if len(llm.Warnings) != len(llm.Provenance) {
		t.Errorf("len(Warnings) = %d, want one fallback warning per activity (%d)", len(llm.Warnings), len(llm.Provenance))
	}
}

func TestDependencyRules_MergedProhibition(t *testing.T) {
	// a and b run in parallel and join before c.
	m := &model.ProcessModel{
		ID:         "p",
		Activities: []model.Activity{{ID: "a", Type: model.ActivityTask}, {ID: "b", Type: model.ActivityTask}, {ID: "c", Type: model.ActivityTask}},
		Gateways:   []model.Gateway{{ID: "fork", Kind: model.GatewayParallel}, {ID: "join", Kind: model.GatewayParallel}},
		Events:     []model.Event{{ID: "s", Kind: model.EventStart}, {ID: "e", Kind: model.EventEnd}},
		Flows: []model.Flow{
			{ID: "f1", SourceRef: "s", TargetRef: "fork"},
			{ID: "f2", SourceRef: "fork", TargetRef: "a"},
			{ID: "f3", SourceRef: "fork", TargetRef: "b"},
			{ID: "f4", SourceRef: "a", TargetRef: "join"},
			{ID: "f5", SourceRef: "b", TargetRef: "join"},
			{ID: "f6", SourceRef: "join", TargetRef: "c"},
			{ID: "f7", SourceRef: "c", TargetRef: "e"},
		},
	}
	p := partition(t, m, model.StrategyActivity)
	rules := dependencyRules(p)

	var prohibitions []model.PolicyRule
	for _, r := range rules["activity-3"] {
		if r.Type == model.RuleProhibition {
			prohibitions = append(prohibitions, r)
		}
	}
	if len(prohibitions) != 1 {
		t.Fatalf("prohibitions on c = %d, want 1", len(prohibitions))
	}
	want := []model.Constraint{
		{Type: "dependency", Operator: model.OpNeq, Value: "activity-1:completed"},
		{Type: "dependency", Operator: model.OpNeq, Value: "activity-2:completed"},
	}
	if !reflect.DeepEqual(prohibitions[0].Constraints, want) {
		t.Errorf("constraints = %v, want %v", prohibitions[0].Constraints, want)
	}
	for _, from := range []string{"activity-1", "activity-2"} {
		if len(rules[from]) != 2 {
			t.Errorf("rules[%s] = %d, want handoff + permission", from, len(rules[from]))
		}
	}
}

func TestDependencyRules_SharedGatewayFlow(t *testing.T) {
	// p1 and q share a fragment and both reach x through one gateway flow.
	m := &model.ProcessModel{
		ID:         "p",
		Activities: []model.Activity{{ID: "p1", Type: model.ActivityTask}, {ID: "q", Type: model.ActivityTask}, {ID: "x", Type: model.ActivityTask}},
		Gateways:   []model.Gateway{{ID: "gw", Kind: model.GatewayExclusive}},
		Events:     []model.Event{{ID: "s", Kind: model.EventStart}, {ID: "e", Kind: model.EventEnd}},
		Flows: []model.Flow{
			{ID: "f1", SourceRef: "s", TargetRef: "p1"},
			{ID: "f2", SourceRef: "p1", TargetRef: "q"},
			{ID: "f3", SourceRef: "p1", TargetRef: "gw"},
			{ID: "f4", SourceRef: "q", TargetRef: "gw"},
			{ID: "f5", SourceRef: "gw", TargetRef: "x"},
			{ID: "f6", SourceRef: "x", TargetRef: "e"},
		},
	}
	rules := dependencyRules(partition(t, m, model.StrategyGateway))

	var handoffs []string
	permits := 0
	for _, r := range rules["gateway-1"] {
		switch r.Type {
		case model.RuleObligation:
			handoffs = append(handoffs, r.TargetActivityID)
		case model.RulePermission:
			permits++
		}
	}
	if !reflect.DeepEqual(handoffs, []string{"p1", "q"}) || permits != 1 {
		t.Errorf("gateway-1 handoffs=%v permits=%d, want [p1 q] and 1", handoffs, permits)
	}
	if len(rules["gateway-2"]) != 1 || len(rules["gateway-2"][0].Constraints) != 1 {
		t.Errorf("gateway-2 rules = %+v, want one single-guard prohibition", rules["gateway-2"])
	}
}
