// Package metrics aggregates a run's fragments, rules and conflicts into
// summary counts and ratios.
package metrics

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// FragmentCount is the per-fragment breakdown.
type FragmentCount struct {
	FragmentID   string `json:"fragment_id" yaml:"fragment_id"`
	Activities   int    `json:"activities" yaml:"activities"`
	Rules        int    `json:"rules" yaml:"rules"`
	Permissions  int    `json:"permissions" yaml:"permissions"`
	Prohibitions int    `json:"prohibitions" yaml:"prohibitions"`
	Obligations  int    `json:"obligations" yaml:"obligations"`
}

// Summary is the metrics of one run. Ratios with a zero denominator are 0.
type Summary struct {
	TotalFragments     int `json:"total_fragments" yaml:"total_fragments"`
	TotalActivities    int `json:"total_activities" yaml:"total_activities"`
	TotalRules         int `json:"total_rules" yaml:"total_rules"`
	Permissions        int `json:"permissions" yaml:"permissions"`
	Prohibitions       int `json:"prohibitions" yaml:"prohibitions"`
	Obligations        int `json:"obligations" yaml:"obligations"`
	TotalConflicts     int `json:"total_conflicts" yaml:"total_conflicts"`
	SameActivity       int `json:"same_activity_conflicts" yaml:"same_activity_conflicts"`
	CrossFragment      int `json:"cross_fragment_conflicts" yaml:"cross_fragment_conflicts"`
	BPRules            int `json:"bp_rules" yaml:"bp_rules"`
	InterFragmentRules int `json:"inter_fragment_rules" yaml:"inter_fragment_rules"`

	RulesPerFragment     float64 `json:"rules_per_fragment" yaml:"rules_per_fragment"`
	RulesPerActivity     float64 `json:"rules_per_activity" yaml:"rules_per_activity"`
	ConflictsPer100Rules float64 `json:"conflicts_per_100_rules" yaml:"conflicts_per_100_rules"`
	PermissionPct        float64 `json:"permission_pct" yaml:"permission_pct"`
	ProhibitionPct       float64 `json:"prohibition_pct" yaml:"prohibition_pct"`
	ObligationPct        float64 `json:"obligation_pct" yaml:"obligation_pct"`

	Fragments []FragmentCount `json:"fragments" yaml:"fragments"`
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Summarize computes the summary. Rules listed under a fragment id that is
// not in fragments still count toward the totals.
func Summarize(fragments []model.Fragment, rules []model.FragmentRules, conflicts []model.ConflictFinding) Summary {
	s := Summary{TotalFragments: len(fragments), Fragments: []FragmentCount{}}

	byFragment := make(map[string]int, len(fragments))
	for i, f := range fragments {
		s.TotalActivities += len(f.Activities)
		byFragment[f.ID] = i
		s.Fragments = append(s.Fragments, FragmentCount{FragmentID: f.ID, Activities: len(f.Activities)})
	}

	for _, fr := range rules {
		var fc *FragmentCount
		if i, ok := byFragment[fr.FragmentID]; ok {
			fc = &s.Fragments[i]
		}
		for _, r := range fr.Rules {
			s.TotalRules++
			switch r.Type {
			case model.RulePermission:
				s.Permissions++
			case model.RuleProhibition:
				s.Prohibitions++
			case model.RuleObligation:
				s.Obligations++
			}
			switch r.Origin {
			case model.OriginBPPolicy:
				s.BPRules++
			case model.OriginDependency:
				s.InterFragmentRules++
			}
			if fc == nil {
				continue
			}
			fc.Rules++
			switch r.Type {
			case model.RulePermission:
				fc.Permissions++
			case model.RuleProhibition:
				fc.Prohibitions++
			case model.RuleObligation:
				fc.Obligations++
			}
		}
	}

	s.TotalConflicts = len(conflicts)
	for _, c := range conflicts {
		switch c.Kind {
		case model.ConflictSameActivity:
			s.SameActivity++
		case model.ConflictCrossFragment:
			s.CrossFragment++
		}
	}

	s.RulesPerFragment = ratio(s.TotalRules, s.TotalFragments)
	s.RulesPerActivity = ratio(s.TotalRules, s.TotalActivities)
	s.ConflictsPer100Rules = 100 * ratio(s.TotalConflicts, s.TotalRules)
	s.PermissionPct = 100 * ratio(s.Permissions, s.TotalRules)
	s.ProhibitionPct = 100 * ratio(s.Prohibitions, s.TotalRules)
	s.ObligationPct = 100 * ratio(s.Obligations, s.TotalRules)
	return s
}

// Report renders the summary as plain text.
func Report(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fragments:        %d (%d activities)\n", s.TotalFragments, s.TotalActivities)
	fmt.Fprintf(&b, "Rules:            %d\n", s.TotalRules)
	fmt.Fprintf(&b, "  permissions:    %d (%.1f%%)\n", s.Permissions, s.PermissionPct)
	fmt.Fprintf(&b, "  prohibitions:   %d (%.1f%%)\n", s.Prohibitions, s.ProhibitionPct)
	fmt.Fprintf(&b, "  obligations:    %d (%.1f%%)\n", s.Obligations, s.ObligationPct)
	if s.BPRules > 0 {
		fmt.Fprintf(&b, "  process-level:  %d\n", s.BPRules)
	}
	if s.InterFragmentRules > 0 {
		fmt.Fprintf(&b, "  inter-fragment: %d\n", s.InterFragmentRules)
	}
	fmt.Fprintf(&b, "Conflicts:        %d (%d same-activity, %d cross-fragment)\n", s.TotalConflicts, s.SameActivity, s.CrossFragment)
	fmt.Fprintf(&b, "Rules/fragment:   %.2f\n", s.RulesPerFragment)
	fmt.Fprintf(&b, "Rules/activity:   %.2f\n", s.RulesPerActivity)
	fmt.Fprintf(&b, "Conflicts/100:    %.2f\n", s.ConflictsPer100Rules)
	if len(s.Fragments) > 0 {
		b.WriteString("\nPer fragment:\n")
		for _, f := range s.Fragments {
			fmt.Fprintf(&b, "  %-14s %2d activities  %3d rules (P %d / X %d / O %d)\n",
				f.FragmentID, f.Activities, f.Rules, f.Permissions, f.Prohibitions, f.Obligations)
		}
	}
	return b.String()
}
