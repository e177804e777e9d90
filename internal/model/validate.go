package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateRule checks a PolicyRule for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the rule is valid.
func ValidateRule(r *PolicyRule) error {
	var ve ValidationError

	if !r.Type.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "rule_type",
			Message: fmt.Sprintf("invalid value %q", r.Type),
		})
	}
	if strings.TrimSpace(r.Action) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "action", Message: "is required"})
	}
	if strings.TrimSpace(r.Assignee) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "assignee", Message: "is required"})
	}
	if strings.TrimSpace(r.TargetActivityID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "target_activity_id", Message: "is required"})
	}
	for i, c := range r.Constraints {
		field := fmt.Sprintf("constraints[%d]", i)
		if strings.TrimSpace(c.Type) == "" {
			ve.Errors = append(ve.Errors, FieldError{Field: field + ".constraint_type", Message: "is required"})
		}
		if !c.Operator.IsValid() {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   field + ".operator",
				Message: fmt.Sprintf("invalid value %q", c.Operator),
			})
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateBPPolicy checks every rule of a process-level policy.
func ValidateBPPolicy(p *BPPolicy) error {
	var ve ValidationError
	if p.RuleCount() == 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "policy", Message: "contains no rules"})
	}
	for _, t := range RuleTypes {
		for i, r := range p.Rules(t) {
			field := fmt.Sprintf("%s[%d]", t, i)
			if strings.TrimSpace(r.Action) == "" {
				ve.Errors = append(ve.Errors, FieldError{Field: field + ".action", Message: "is required"})
			}
			for j, c := range r.Constraint {
				if !c.Operator.IsValid() {
					ve.Errors = append(ve.Errors, FieldError{
						Field:   fmt.Sprintf("%s.constraint[%d].operator", field, j),
						Message: fmt.Sprintf("invalid value %q", c.Operator),
					})
				}
			}
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateProcess checks structural invariants of a process model: unique
// non-empty node ids, known kinds, resolvable flow endpoints, and exactly
// one start event. Reachability is checked by the fragmenter.
func ValidateProcess(m *ProcessModel) error {
	seen := make(map[string]string)
	claim := func(id, what string) error {
		if strings.TrimSpace(id) == "" {
			return &ModelError{Reason: fmt.Sprintf("%s with empty id", what)}
		}
		if prev, dup := seen[id]; dup {
			return &ModelError{NodeID: id, Reason: fmt.Sprintf("duplicate node id (already declared as %s)", prev)}
		}
		seen[id] = what
		return nil
	}

	for _, a := range m.Activities {
		if err := claim(a.ID, "activity"); err != nil {
			return err
		}
		if !a.Type.IsValid() {
			return &ModelError{NodeID: a.ID, Reason: fmt.Sprintf("invalid activity type %q", a.Type)}
		}
	}
	for _, g := range m.Gateways {
		if err := claim(g.ID, "gateway"); err != nil {
			return err
		}
		if !g.Kind.IsValid() {
			return &ModelError{NodeID: g.ID, Reason: fmt.Sprintf("invalid gateway kind %q", g.Kind)}
		}
	}
	starts := 0
	for _, e := range m.Events {
		if err := claim(e.ID, "event"); err != nil {
			return err
		}
		if !e.Kind.IsValid() {
			return &ModelError{NodeID: e.ID, Reason: fmt.Sprintf("invalid event kind %q", e.Kind)}
		}
		if e.Kind == EventStart {
			starts++
		}
	}

	flowIDs := make(map[string]bool, len(m.Flows))
	for _, f := range m.Flows {
		if strings.TrimSpace(f.ID) == "" {
			return &ModelError{Reason: fmt.Sprintf("flow %s->%s has empty id", f.SourceRef, f.TargetRef)}
		}
		if flowIDs[f.ID] {
			return &ModelError{FlowID: f.ID, Reason: "duplicate flow id"}
		}
		flowIDs[f.ID] = true
		if _, ok := seen[f.SourceRef]; !ok {
			return &ModelError{FlowID: f.ID, NodeID: f.SourceRef, Reason: "source_ref references undefined node"}
		}
		if _, ok := seen[f.TargetRef]; !ok {
			return &ModelError{FlowID: f.ID, NodeID: f.TargetRef, Reason: "target_ref references undefined node"}
		}
	}

	switch {
	case starts == 0:
		return &ModelError{Reason: "no start event"}
	case starts > 1:
		return &ModelError{Reason: fmt.Sprintf("%d start events declared, exactly one is required", starts)}
	}
	if len(m.Activities) == 0 {
		return &ModelError{Reason: "process has no activities"}
	}
	return nil
}
