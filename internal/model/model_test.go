package model

import (
	"errors"
	"strings"
	"testing"
)

func TestStrategy_IsValid(t *testing.T) {
	for _, tc := range []struct {
		s    Strategy
		want bool
	}{
		{StrategyActivity, true},
		{StrategyGateway, true},
		{StrategyHybrid, true},
		{Strategy(""), false},
		{Strategy("random"), false},
	} {
		if got := tc.s.IsValid(); got != tc.want {
			t.Errorf("Strategy(%q).IsValid() = %v, want %v", tc.s, got, tc.want)
		}
	}
}

func TestGatewayKind_IsDecision(t *testing.T) {
	for _, tc := range []struct {
		k    GatewayKind
		want bool
	}{
		{GatewayExclusive, true},
		{GatewayInclusive, true},
		{GatewayParallel, false},
	} {
		if got := tc.k.IsDecision(); got != tc.want {
			t.Errorf("GatewayKind(%q).IsDecision() = %v, want %v", tc.k, got, tc.want)
		}
	}
}

func TestRuleType_Rank(t *testing.T) {
	if !(RulePermission.Rank() < RuleProhibition.Rank() && RuleProhibition.Rank() < RuleObligation.Rank()) {
		t.Errorf("rank order = %d,%d,%d, want increasing",
			RulePermission.Rank(), RuleProhibition.Rank(), RuleObligation.Rank())
	}
	if RuleType("bogus").IsValid() {
		t.Error("RuleType(bogus).IsValid() = true")
	}
}

func TestOperator_IsValid(t *testing.T) {
	for _, op := range []Operator{OpEq, OpNeq, OpLt, OpLteq, OpGt, OpGteq, OpIn} {
		if !op.IsValid() {
			t.Errorf("Operator(%q).IsValid() = false", op)
		}
	}
	if Operator("like").IsValid() {
		t.Error("Operator(like).IsValid() = true")
	}
}

// review returns a small valid model: start -> a -> gw -> (b | c) -> end.
func review() *ProcessModel {
	return &ProcessModel{
		ID: "p",
		Activities: []Activity{
			{ID: "a", Name: "A", Type: ActivityTask},
			{ID: "b", Name: "B", Type: ActivityTask},
			{ID: "c", Name: "C", Type: ActivitySubprocess},
		},
		Gateways: []Gateway{{ID: "gw", Kind: GatewayExclusive}},
		Events: []Event{
			{ID: "s", Kind: EventStart},
			{ID: "e", Kind: EventEnd},
		},
		Flows: []Flow{
			{ID: "f1", SourceRef: "s", TargetRef: "a"},
			{ID: "f2", SourceRef: "a", TargetRef: "gw"},
			{ID: "f3", SourceRef: "gw", TargetRef: "c"},
			{ID: "f4", SourceRef: "gw", TargetRef: "b"},
			{ID: "f5", SourceRef: "b", TargetRef: "e"},
			{ID: "f6", SourceRef: "c", TargetRef: "e"},
		},
	}
}

func TestIndex_Neighbors(t *testing.T) {
	idx := NewIndex(review())

	if got := idx.Kind("gw"); got != NodeGateway {
		t.Errorf("Kind(gw) = %v, want gateway", got)
	}
	if got := idx.Kind("missing"); got != NodeUnknown {
		t.Errorf("Kind(missing) = %v, want unknown", got)
	}

	// Successors come back in activity declaration order, not flow order.
	if got := strings.Join(idx.Successors("gw"), ","); got != "b,c" {
		t.Errorf("Successors(gw) = %q, want %q", got, "b,c")
	}
	if got := strings.Join(idx.Predecessors("e"), ","); got != "b,c" {
		t.Errorf("Predecessors(e) = %q, want %q", got, "b,c")
	}
	before, after := idx.NeighborActivities("a")
	if len(before) != 0 {
		t.Errorf("NeighborActivities(a) before = %v, want empty", before)
	}
	if strings.Join(after, ",") != "b,c" {
		t.Errorf("NeighborActivities(a) after = %v, want [b c]", after)
	}
}

func TestValidateProcess(t *testing.T) {
	if err := ValidateProcess(review()); err != nil {
		t.Fatalf("ValidateProcess(valid) = %v", err)
	}

	for _, tc := range []struct {
		name   string
		mutate func(m *ProcessModel)
		node   string
		flow   string
		reason string
	}{
		{
			name:   "undefined target",
			mutate: func(m *ProcessModel) { m.Flows[1].TargetRef = "ghost" },
			node:   "ghost",
			flow:   "f2",
			reason: "target_ref",
		},
		{
			name:   "undefined source",
			mutate: func(m *ProcessModel) { m.Flows[0].SourceRef = "nowhere" },
			node:   "nowhere",
			flow:   "f1",
			reason: "source_ref",
		},
		{
			name:   "no start event",
			mutate: func(m *ProcessModel) { m.Events[0].Kind = EventIntermediate },
			reason: "no start event",
		},
		{
			name: "two start events",
			mutate: func(m *ProcessModel) {
				m.Events = append(m.Events, Event{ID: "s2", Kind: EventStart})
			},
			reason: "start events",
		},
		{
			name:   "duplicate node id",
			mutate: func(m *ProcessModel) { m.Gateways[0].ID = "a" },
			node:   "a",
			reason: "duplicate",
		},
		{
			name:   "duplicate flow id",
			mutate: func(m *ProcessModel) { m.Flows[2].ID = "f1" },
			flow:   "f1",
			reason: "duplicate flow",
		},
		{
			name:   "bad gateway kind",
			mutate: func(m *ProcessModel) { m.Gateways[0].Kind = "complex" },
			node:   "gw",
			reason: "gateway kind",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := review()
			tc.mutate(m)
			err := ValidateProcess(m)
			var me *ModelError
			if !errors.As(err, &me) {
				t.Fatalf("ValidateProcess() = %v, want *ModelError", err)
			}
			if me.NodeID != tc.node {
				t.Errorf("NodeID = %q, want %q", me.NodeID, tc.node)
			}
			if me.FlowID != tc.flow {
				t.Errorf("FlowID = %q, want %q", me.FlowID, tc.flow)
			}
			if !strings.Contains(me.Reason, tc.reason) {
				t.Errorf("Reason = %q, want it to contain %q", me.Reason, tc.reason)
			}
		})
	}
}

// fieldErrors extracts a *ValidationError from err or fails the test.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

func hasFieldError(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func validRule() PolicyRule {
	return PolicyRule{
		Type:             RulePermission,
		Action:           "execute",
		Assignee:         "role:clerk",
		TargetActivityID: "a",
		Constraints:      []Constraint{{Type: "temporal", Operator: OpLteq, Value: "24h"}},
	}
}

func TestValidateRule(t *testing.T) {
	r := validRule()
	if err := ValidateRule(&r); err != nil {
		t.Fatalf("ValidateRule(valid) = %v", err)
	}

	r.Type = "maybe"
	r.Action = " "
	r.Constraints[0].Operator = "like"
	errs := fieldErrors(t, ValidateRule(&r))
	for _, field := range []string{"rule_type", "action", "constraints[0].operator"} {
		if !hasFieldError(errs, field) {
			t.Errorf("expected error on field %q, got %v", field, errs)
		}
	}
	if hasFieldError(errs, "assignee") {
		t.Error("unexpected error on field 'assignee'")
	}
}

func TestValidateBPPolicy(t *testing.T) {
	errs := fieldErrors(t, ValidateBPPolicy(&BPPolicy{}))
	if !hasFieldError(errs, "policy") {
		t.Errorf("expected error on empty policy, got %v", errs)
	}

	p := &BPPolicy{
		Obligation: []BPRule{{
			Target:     "bp:process",
			Action:     "retain",
			Constraint: []BPConstraint{{LeftOperand: "elapsedTime", Operator: "around", RightOperand: "P7Y"}},
		}},
	}
	errs = fieldErrors(t, ValidateBPPolicy(p))
	if !hasFieldError(errs, "obligation[0].constraint[0].operator") {
		t.Errorf("expected operator error, got %v", errs)
	}
}

func TestPolicyRule_Describe(t *testing.T) {
	r := validRule()
	r.ID = "activity-1/r1"
	got := r.Describe()
	want := "activity-1/r1 permission(role:clerk execute on a) when [temporal lteq 24h]"
	if got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}

	r.Origin = OriginBPPolicy
	r.BPSource = "financial"
	if got := r.Describe(); !strings.HasSuffix(got, "[bp-level:financial]") {
		t.Errorf("Describe() = %q, want bp-level suffix", got)
	}
}

func TestProvenance_Fallback(t *testing.T) {
	for _, tc := range []struct {
		p    Provenance
		want bool
	}{
		{Provenance{Requested: ModeTemplate, Actual: SourceTemplate}, false},
		{Provenance{Requested: ModeLLM, Actual: SourceLLM}, false},
		{Provenance{Requested: ModeLLM, Actual: SourceTemplate}, true},
	} {
		if got := tc.p.Fallback(); got != tc.want {
			t.Errorf("%+v.Fallback() = %v, want %v", tc.p, got, tc.want)
		}
	}
}

func TestStageError_Unwrap(t *testing.T) {
	inner := &ModelError{NodeID: "x", Reason: "broken"}
	err := error(&StageError{Stage: StageFragment, Err: inner})
	var me *ModelError
	if !errors.As(err, &me) || me.NodeID != "x" {
		t.Fatalf("errors.As(StageError) did not reach ModelError: %v", err)
	}
	if got := err.Error(); got != `fragment stage: model error: node "x": broken` {
		t.Errorf("Error() = %q", got)
	}
}

func TestBPPolicy_NilSafe(t *testing.T) {
	var p *BPPolicy
	if p.RuleCount() != 0 || p.Rules(RulePermission) != nil {
		t.Error("nil BPPolicy should report no rules")
	}
}
