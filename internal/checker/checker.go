// Package checker finds contradictory permission/prohibition pairs in a
// generated rule set.
package checker

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// Wildcards are assignee tokens that cover every assignee.
var Wildcards = []string{"*", "any", "role:any"}

// Checker compares rules pairwise. The zero value uses exact assignee
// matching plus wildcards.
type Checker struct {
	hierarchy map[string][]string
}

// Option configures a Checker.
type Option func(*Checker)

// WithRoleHierarchy enables subsumption: a parent role overlaps with every
// role reachable through its children.
func WithRoleHierarchy(h map[string][]string) Option {
	return func(c *Checker) { c.hierarchy = h }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check runs New().Check.
func Check(rules []model.FragmentRules, deps []model.FragmentDependency) []model.ConflictFinding {
	return New().Check(rules, deps)
}

// location is a rule's fragment position and index within that fragment.
type location struct {
	frag, rule int
}

func (l location) less(o location) bool {
	if l.frag != o.frag {
		return l.frag < o.frag
	}
	return l.rule < o.rule
}

type found struct {
	first, second location
	finding       model.ConflictFinding
}

// Check compares every pair of rules within each fragment and, for each
// dependency, the rules of both fragments that target the dependency's
// endpoint activities. Findings are ordered by the position of their
// earlier rule, then their later rule. The input is not modified.
func (c *Checker) Check(rules []model.FragmentRules, deps []model.FragmentDependency) []model.ConflictFinding {
	pos := make(map[string]int, len(rules))
	for i, fr := range rules {
		pos[fr.FragmentID] = i
	}

	var all []found
	record := func(kind model.ConflictKind, la, lb location) {
		a := rules[la.frag].Rules[la.rule]
		b := rules[lb.frag].Rules[lb.rule]
		f, ok := c.Compare(kind, a, b)
		if !ok {
			return
		}
		if lb.less(la) {
			la, lb = lb, la
		}
		all = append(all, found{first: la, second: lb, finding: f})
	}

	for fi, fr := range rules {
		for i := 0; i < len(fr.Rules); i++ {
			for j := i + 1; j < len(fr.Rules); j++ {
				record(model.ConflictSameActivity, location{fi, i}, location{fi, j})
			}
		}
	}

	seen := make(map[[2]location]bool)
	for _, d := range deps {
		from, okFrom := pos[d.FromFragmentID]
		to, okTo := pos[d.ToFragmentID]
		if !okFrom || !okTo || from == to {
			continue
		}
		upstream := d.Upstream()
		boundary := func(r model.PolicyRule) bool {
			return r.TargetActivityID == d.ToActivityID || slices.Contains(upstream, r.TargetActivityID)
		}
		for i, ra := range rules[from].Rules {
			if !boundary(ra) {
				continue
			}
			for j, rb := range rules[to].Rules {
				if !boundary(rb) {
					continue
				}
				la, lb := location{from, i}, location{to, j}
				if lb.less(la) {
					la, lb = lb, la
				}
				if seen[[2]location{la, lb}] {
					continue
				}
				seen[[2]location{la, lb}] = true
				record(model.ConflictCrossFragment, la, lb)
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].first != all[j].first {
			return all[i].first.less(all[j].first)
		}
		return all[i].second.less(all[j].second)
	})
	out := make([]model.ConflictFinding, len(all))
	for i, f := range all {
		out[i] = f.finding
	}
	return out
}

// Compare reports whether a and b contradict each other. The finding always
// carries the permission as RuleA, so Compare(k, a, b) and Compare(k, b, a)
// are equal.
func (c *Checker) Compare(kind model.ConflictKind, a, b model.PolicyRule) (model.ConflictFinding, bool) {
	if a.TargetActivityID != b.TargetActivityID || a.Action != b.Action {
		return model.ConflictFinding{}, false
	}
	switch {
	case a.Type == model.RulePermission && b.Type == model.RuleProhibition:
	case a.Type == model.RuleProhibition && b.Type == model.RulePermission:
		a, b = b, a
	default:
		return model.ConflictFinding{}, false
	}

	who, ok := c.assigneesOverlap(a.Assignee, b.Assignee)
	if !ok {
		return model.ConflictFinding{}, false
	}
	if _, disjoint := separatingDimension(a.Constraints, b.Constraints); disjoint {
		return model.ConflictFinding{}, false
	}

	return model.ConflictFinding{
		Kind:  kind,
		RuleA: a,
		RuleB: b,
		Explanation: fmt.Sprintf("%s contradicts %s: both govern %q on %s, %s, %s",
			a.Describe(), b.Describe(), a.Action, a.TargetActivityID, who, constraintOverlap(a.Constraints, b.Constraints)),
	}, true
}

func isWildcard(s string) bool {
	for _, w := range Wildcards {
		if s == w {
			return true
		}
	}
	return false
}

func (c *Checker) assigneesOverlap(a, b string) (string, bool) {
	switch {
	case a == b:
		return fmt.Sprintf("both apply to %s", a), true
	case isWildcard(a):
		return fmt.Sprintf("wildcard %s covers %s", a, b), true
	case isWildcard(b):
		return fmt.Sprintf("wildcard %s covers %s", b, a), true
	case c.subsumes(a, b):
		return fmt.Sprintf("%s includes %s", a, b), true
	case c.subsumes(b, a):
		return fmt.Sprintf("%s includes %s", b, a), true
	}
	return "", false
}

// subsumes reports whether child is reachable from parent in the hierarchy.
func (c *Checker) subsumes(parent, child string) bool {
	if len(c.hierarchy) == 0 {
		return false
	}
	seen := map[string]bool{parent: true}
	stack := []string{parent}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, k := range c.hierarchy[cur] {
			if k == child {
				return true
			}
			if !seen[k] {
				seen[k] = true
				stack = append(stack, k)
			}
		}
	}
	return false
}

func constraintOverlap(a, b []model.Constraint) string {
	if len(a) == 0 && len(b) == 0 {
		return "neither is constrained"
	}
	var dims []string
	seen := make(map[string]bool)
	for _, c := range append(append([]model.Constraint(nil), a...), b...) {
		if !seen[c.Type] {
			seen[c.Type] = true
			dims = append(dims, c.Type)
		}
	}
	return fmt.Sprintf("constraints on %s can hold together", strings.Join(dims, ", "))
}
