package model

// BPConstraint is an ODRL constraint as written in a process-level policy.
type BPConstraint struct {
	LeftOperand  string   `json:"leftOperand" yaml:"leftOperand"`
	Operator     Operator `json:"operator" yaml:"operator"`
	RightOperand string   `json:"rightOperand" yaml:"rightOperand"`
}

// BPRule is a permission, prohibition, or obligation of a process-level
// policy. Target is a process-level asset such as "bp:process" or an
// activity id.
type BPRule struct {
	Target     string         `json:"target" yaml:"target"`
	Action     string         `json:"action" yaml:"action"`
	Assignee   string         `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Constraint []BPConstraint `json:"constraint,omitempty" yaml:"constraint,omitempty"`
}

// BPPolicy is an ODRL policy governing the whole process before
// fragmentation.
type BPPolicy struct {
	Context     string   `json:"@context" yaml:"@context"`
	Type        string   `json:"@type" yaml:"@type"`
	UID         string   `json:"uid" yaml:"uid"`
	Profile     string   `json:"profile,omitempty" yaml:"profile,omitempty"`
	Permission  []BPRule `json:"permission,omitempty" yaml:"permission,omitempty"`
	Prohibition []BPRule `json:"prohibition,omitempty" yaml:"prohibition,omitempty"`
	Obligation  []BPRule `json:"obligation,omitempty" yaml:"obligation,omitempty"`
}

// Rules returns the policy's rules of the given type.
func (p *BPPolicy) Rules(t RuleType) []BPRule {
	if p == nil {
		return nil
	}
	switch t {
	case RulePermission:
		return p.Permission
	case RuleProhibition:
		return p.Prohibition
	case RuleObligation:
		return p.Obligation
	}
	return nil
}

// RuleCount returns the total number of rules in the policy.
func (p *BPPolicy) RuleCount() int {
	if p == nil {
		return 0
	}
	return len(p.Permission) + len(p.Prohibition) + len(p.Obligation)
}
