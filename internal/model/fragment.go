package model

// Strategy selects a fragmentation algorithm.
type Strategy string

const (
	StrategyActivity Strategy = "activity"
	StrategyGateway  Strategy = "gateway"
	StrategyHybrid   Strategy = "hybrid"
)

// Strategies lists every supported strategy in display order.
var Strategies = []Strategy{StrategyActivity, StrategyGateway, StrategyHybrid}

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	return string(s)
}

// IsValid checks whether the strategy is a known value.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyActivity, StrategyGateway, StrategyHybrid:
		return true
	}
	return false
}

// Fragment is a policy-scoping subset of a process. Activities are owned
// exclusively; Boundary lists the gateways and events adjacent to the
// fragment, which may also appear in other fragments' boundaries.
type Fragment struct {
	ID          string   `json:"id" yaml:"id"`
	Strategy    Strategy `json:"strategy" yaml:"strategy"`
	ParentID    string   `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Activities  []string `json:"activities" yaml:"activities"`
	EntryPoints []string `json:"entry_points" yaml:"entry_points"`
	ExitPoints  []string `json:"exit_points" yaml:"exit_points"`
	Boundary    []string `json:"boundary,omitempty" yaml:"boundary,omitempty"`
}

// Contains reports whether the fragment owns the activity.
func (f *Fragment) Contains(activityID string) bool {
	for _, a := range f.Activities {
		if a == activityID {
			return true
		}
	}
	return false
}

// FragmentDependency is one flow crossing from one fragment into another.
// FromActivityID and ToActivityID are the activities at either end once
// gateways and events on the path are skipped. When several activities of
// the upstream fragment feed the flow through a gateway, FromActivityIDs
// lists all of them and FromActivityID is the first.
type FragmentDependency struct {
	FromFragmentID  string   `json:"from_fragment_id" yaml:"from_fragment_id"`
	ToFragmentID    string   `json:"to_fragment_id" yaml:"to_fragment_id"`
	ViaFlowID       string   `json:"via_flow_id" yaml:"via_flow_id"`
	FromActivityID  string   `json:"from_activity_id" yaml:"from_activity_id"`
	FromActivityIDs []string `json:"from_activity_ids,omitempty" yaml:"from_activity_ids,omitempty"`
	ToActivityID    string   `json:"to_activity_id" yaml:"to_activity_id"`
}

// Upstream returns every upstream boundary activity of the dependency.
func (d FragmentDependency) Upstream() []string {
	if len(d.FromActivityIDs) > 0 {
		return d.FromActivityIDs
	}
	if d.FromActivityID == "" {
		return nil
	}
	return []string{d.FromActivityID}
}

// WarningKind categorizes a non-fatal finding.
type WarningKind string

const (
	WarningUnreachable WarningKind = "unreachable"
	WarningFallback    WarningKind = "generation-fallback"
	WarningBPUnplaced  WarningKind = "bp-rule-unplaced"
)

// Warning is advisory output reported alongside normal results.
type Warning struct {
	Kind    WarningKind `json:"kind" yaml:"kind"`
	Message string      `json:"message" yaml:"message"`
	NodeIDs []string    `json:"node_ids,omitempty" yaml:"node_ids,omitempty"`
}
