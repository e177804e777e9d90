package model

import (
	"fmt"
	"strings"
)

// RuleType is the ODRL rule category.
type RuleType string

const (
	RulePermission  RuleType = "permission"
	RuleProhibition RuleType = "prohibition"
	RuleObligation  RuleType = "obligation"
)

// RuleTypes lists rule types in emission order.
var RuleTypes = []RuleType{RulePermission, RuleProhibition, RuleObligation}

// IsValid checks whether the rule type is a known value.
func (t RuleType) IsValid() bool {
	switch t {
	case RulePermission, RuleProhibition, RuleObligation:
		return true
	}
	return false
}

// Rank orders rule types within one activity: permission, prohibition,
// obligation.
func (t RuleType) Rank() int {
	switch t {
	case RulePermission:
		return 0
	case RuleProhibition:
		return 1
	case RuleObligation:
		return 2
	}
	return 3
}

// Operator compares a constraint's left operand to its value.
type Operator string

const (
	OpEq   Operator = "eq"
	OpNeq  Operator = "neq"
	OpLt   Operator = "lt"
	OpLteq Operator = "lteq"
	OpGt   Operator = "gt"
	OpGteq Operator = "gteq"
	OpIn   Operator = "in"
)

// IsValid checks whether the operator is a known value.
func (o Operator) IsValid() bool {
	switch o {
	case OpEq, OpNeq, OpLt, OpLteq, OpGt, OpGteq, OpIn:
		return true
	}
	return false
}

// Mode selects how activity rules are produced.
type Mode string

const (
	ModeTemplate Mode = "template"
	ModeLLM      Mode = "llm"
)

// IsValid checks whether the mode is a known value.
func (m Mode) IsValid() bool {
	return m == ModeTemplate || m == ModeLLM
}

// Origin records which generator produced a rule.
type Origin string

const (
	OriginTemplate   Origin = "template"
	OriginLLM        Origin = "llm"
	OriginBPPolicy   Origin = "bp-policy"
	OriginDependency Origin = "dependency"
)

// Constraint restricts when a rule applies.
type Constraint struct {
	Type     string   `json:"constraint_type" yaml:"constraint_type"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value" yaml:"value"`
}

func (c Constraint) String() string {
	return fmt.Sprintf("%s %s %s", c.Type, c.Operator, c.Value)
}

// PolicyRule is one ODRL-style statement about a single activity.
// PeerFragmentID is set only for inter-fragment rules.
type PolicyRule struct {
	ID               string       `json:"id" yaml:"id"`
	Type             RuleType     `json:"rule_type" yaml:"rule_type"`
	Action           string       `json:"action" yaml:"action"`
	Assigner         string       `json:"assigner,omitempty" yaml:"assigner,omitempty"`
	Assignee         string       `json:"assignee" yaml:"assignee"`
	TargetActivityID string       `json:"target_activity_id" yaml:"target_activity_id"`
	Constraints      []Constraint `json:"constraints" yaml:"constraints"`
	FragmentID       string       `json:"fragment_id" yaml:"fragment_id"`
	PeerFragmentID   string       `json:"peer_fragment_id,omitempty" yaml:"peer_fragment_id,omitempty"`
	Origin           Origin       `json:"origin" yaml:"origin"`
	BPSource         string       `json:"bp_source,omitempty" yaml:"bp_source,omitempty"`
	BPTarget         string       `json:"bp_target,omitempty" yaml:"bp_target,omitempty"`
}

// Describe renders the rule on one line for explanations and reports.
func (r *PolicyRule) Describe() string {
	var b strings.Builder
	if r.ID != "" {
		b.WriteString(r.ID)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "%s(%s %s on %s)", r.Type, r.Assignee, r.Action, r.TargetActivityID)
	if len(r.Constraints) > 0 {
		parts := make([]string, len(r.Constraints))
		for i, c := range r.Constraints {
			parts[i] = c.String()
		}
		fmt.Fprintf(&b, " when [%s]", strings.Join(parts, ", "))
	}
	switch r.Origin {
	case OriginBPPolicy:
		fmt.Fprintf(&b, " [bp-level:%s]", r.BPSource)
	case OriginDependency:
		fmt.Fprintf(&b, " [handoff %s->%s]", r.FragmentID, r.PeerFragmentID)
	}
	return b.String()
}

// FragmentRules groups the rules owned by one fragment. A slice of these
// replaces a map so encoded output keeps fragment order.
type FragmentRules struct {
	FragmentID string       `json:"fragment_id" yaml:"fragment_id"`
	Rules      []PolicyRule `json:"rules" yaml:"rules"`
}

// ConflictKind categorizes a contradiction.
type ConflictKind string

const (
	ConflictSameActivity  ConflictKind = "same-activity-contradiction"
	ConflictCrossFragment ConflictKind = "cross-fragment-contradiction"
)

// ConflictFinding is a permission/prohibition pair that can hold at the same
// time. RuleA is always the permission and RuleB the prohibition.
type ConflictFinding struct {
	Kind        ConflictKind `json:"kind" yaml:"kind"`
	RuleA       PolicyRule   `json:"rule_a" yaml:"rule_a"`
	RuleB       PolicyRule   `json:"rule_b" yaml:"rule_b"`
	Explanation string       `json:"explanation" yaml:"explanation"`
}

// Source records which path produced an activity's rules.
type Source string

const (
	SourceTemplate Source = "template"
	SourceLLM      Source = "llm"
)

// Provenance reports, per activity, the requested mode and the path that
// actually produced the rules.
type Provenance struct {
	FragmentID     string `json:"fragment_id" yaml:"fragment_id"`
	ActivityID     string `json:"activity_id" yaml:"activity_id"`
	Requested      Mode   `json:"requested" yaml:"requested"`
	Actual         Source `json:"actual" yaml:"actual"`
	TemplateEntry  string `json:"template_entry,omitempty" yaml:"template_entry,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty" yaml:"fallback_reason,omitempty"`
}

// Fallback reports whether the requested path was not the one used.
func (p Provenance) Fallback() bool {
	return p.Requested == ModeLLM && p.Actual != SourceLLM
}
