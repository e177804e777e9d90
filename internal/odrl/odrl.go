// Package odrl recombines fragment rules into one process-wide ODRL policy
// and compares it with the process-level policy it was derived from.
package odrl

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// ContextURL is the JSON-LD context of reconstructed policies.
const ContextURL = "http://www.w3.org/ns/odrl.jsonld"

// namespace seeds deterministic policy uids.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/alfredjeanlab/odrlfrag"))

// PolicyUID returns the stable uid of the reconstructed policy for a process.
func PolicyUID(processID string) string {
	return "urn:uuid:" + uuid.NewSHA1(namespace, []byte(processID)).String()
}

// Reconstruct merges every fragment's rules into one ODRL Set. Rules that
// came from the process-level policy return to their original target, so
// copies placed on several activities collapse into one. Exact duplicates
// are dropped; first occurrence wins.
func Reconstruct(processID string, rules []model.FragmentRules) *model.BPPolicy {
	p := &model.BPPolicy{
		Context:     ContextURL,
		Type:        "Set",
		UID:         PolicyUID(processID),
		Permission:  []model.BPRule{},
		Prohibition: []model.BPRule{},
		Obligation:  []model.BPRule{},
	}
	seen := make(map[string]bool)
	for _, fr := range rules {
		for _, r := range fr.Rules {
			br := model.BPRule{
				Target:   r.TargetActivityID,
				Action:   r.Action,
				Assignee: r.Assignee,
			}
			if r.Origin == model.OriginBPPolicy && r.BPTarget != "" {
				br.Target = r.BPTarget
			}
			for _, c := range r.Constraints {
				br.Constraint = append(br.Constraint, model.BPConstraint{LeftOperand: c.Type, Operator: c.Operator, RightOperand: c.Value})
			}
			key := string(r.Type) + "\x00" + signature(br, true)
			if seen[key] {
				continue
			}
			seen[key] = true
			switch r.Type {
			case model.RulePermission:
				p.Permission = append(p.Permission, br)
			case model.RuleProhibition:
				p.Prohibition = append(p.Prohibition, br)
			case model.RuleObligation:
				p.Obligation = append(p.Obligation, br)
			}
		}
	}
	return p
}

// signature renders a rule with its constraints sorted, so constraint order
// does not matter.
func signature(r model.BPRule, withAssignee bool) string {
	cs := make([]string, len(r.Constraint))
	for i, c := range r.Constraint {
		cs[i] = c.LeftOperand + " " + string(c.Operator) + " " + c.RightOperand
	}
	sort.Strings(cs)
	parts := []string{r.Target, r.Action}
	if withAssignee {
		parts = append(parts, r.Assignee)
	}
	return strings.Join(append(parts, cs...), "\x00")
}

// TypeStats counts rules of one type.
type TypeStats struct {
	Type          model.RuleType `json:"type" yaml:"type"`
	Original      int            `json:"original" yaml:"original"`
	Reconstructed int            `json:"reconstructed" yaml:"reconstructed"`
	Matched       int            `json:"matched" yaml:"matched"`
}

// TypedRule is a rule tagged with its type.
type TypedRule struct {
	Type model.RuleType `json:"type" yaml:"type"`
	Rule model.BPRule   `json:"rule" yaml:"rule"`
}

// Match pairs an original rule with the reconstructed rule that covers it.
type Match struct {
	Type          model.RuleType `json:"type" yaml:"type"`
	Original      model.BPRule   `json:"original" yaml:"original"`
	Reconstructed model.BPRule   `json:"reconstructed" yaml:"reconstructed"`
}

// Report compares a reconstructed policy with the original process-level
// policy. Accuracy is matched/original and nil without an original.
type Report struct {
	Original      int         `json:"original_rules" yaml:"original_rules"`
	Reconstructed int         `json:"reconstructed_rules" yaml:"reconstructed_rules"`
	ByType        []TypeStats `json:"by_type" yaml:"by_type"`
	Matched       []Match     `json:"matched,omitempty" yaml:"matched,omitempty"`
	Lost          []TypedRule `json:"lost,omitempty" yaml:"lost,omitempty"`
	New           []TypedRule `json:"new,omitempty" yaml:"new,omitempty"`
	Accuracy      *float64    `json:"accuracy" yaml:"accuracy"`
}

// Evaluate matches reconstructed rules to original rules of the same type.
// Two rules match when target, action and constraint set agree; assignees
// are ignored because process-level rules may leave them open. Each original
// rule matches at most once.
func Evaluate(original, reconstructed *model.BPPolicy) Report {
	rep := Report{}
	for _, t := range model.RuleTypes {
		st := TypeStats{Type: t, Original: len(original.Rules(t)), Reconstructed: len(reconstructed.Rules(t))}
		rep.Original += st.Original
		rep.Reconstructed += st.Reconstructed

		if original != nil {
			used := make([]bool, len(original.Rules(t)))
			for _, rr := range reconstructed.Rules(t) {
				matched := false
				for i, or := range original.Rules(t) {
					if used[i] || signature(or, false) != signature(rr, false) {
						continue
					}
					used[i] = true
					matched = true
					st.Matched++
					rep.Matched = append(rep.Matched, Match{Type: t, Original: or, Reconstructed: rr})
					break
				}
				if !matched {
					rep.New = append(rep.New, TypedRule{Type: t, Rule: rr})
				}
			}
			for i, or := range original.Rules(t) {
				if !used[i] {
					rep.Lost = append(rep.Lost, TypedRule{Type: t, Rule: or})
				}
			}
		}
		rep.ByType = append(rep.ByType, st)
	}

	if original != nil {
		acc := 0.0
		if rep.Original > 0 {
			matched := 0
			for _, st := range rep.ByType {
				matched += st.Matched
			}
			acc = float64(matched) / float64(rep.Original)
		}
		rep.Accuracy = &acc
	}
	return rep
}

// Encode writes p as indented JSON-LD.
func Encode(w io.Writer, p *model.BPPolicy) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
