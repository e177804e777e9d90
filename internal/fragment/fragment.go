// Package fragment partitions a process model into policy-scoping fragments
// and computes the dependencies between them.
package fragment

import (
	"fmt"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

const (
	// DefaultThreshold is the hybrid split size used when Options.Threshold is zero.
	DefaultThreshold = 3
	// MaxThreshold bounds Options.Threshold.
	MaxThreshold = 1000
)

// Options selects the fragmentation strategy.
type Options struct {
	Strategy  model.Strategy
	Threshold int
}

// Partition is the output of one fragmentation run.
type Partition struct {
	Strategy     model.Strategy
	Fragments    []model.Fragment
	Dependencies []model.FragmentDependency
	Warnings     []model.Warning

	owner map[string]int
}

// Owner returns the id of the fragment that owns the activity.
func (p *Partition) Owner(activityID string) (string, bool) {
	i, ok := p.owner[activityID]
	if !ok {
		return "", false
	}
	return p.Fragments[i].ID, true
}

// Lookup returns the fragment with the given id.
func (p *Partition) Lookup(id string) (*model.Fragment, bool) {
	for i := range p.Fragments {
		if p.Fragments[i].ID == id {
			return &p.Fragments[i], true
		}
	}
	return nil, false
}

// group is an ordered set of activity ids with an optional parent fragment id.
type group struct {
	activities []string
	parent     string
}

// partitioner is one strategy variant.
type partitioner func(g *graph, opts Options) []group

var partitioners = map[model.Strategy]partitioner{
	model.StrategyActivity: byActivity,
	model.StrategyGateway:  byGateway,
	model.StrategyHybrid:   byHybrid,
}

// CheckOptions validates the strategy and threshold without touching a model.
func CheckOptions(opts Options) error {
	if !opts.Strategy.IsValid() {
		return &model.ConfigurationError{
			Field:  "strategy",
			Value:  string(opts.Strategy),
			Reason: "must be one of activity, gateway, hybrid",
		}
	}
	if opts.Threshold != 0 && (opts.Threshold < 1 || opts.Threshold > MaxThreshold) {
		return &model.ConfigurationError{
			Field:  "threshold",
			Value:  fmt.Sprint(opts.Threshold),
			Reason: fmt.Sprintf("must be between 1 and %d", MaxThreshold),
		}
	}
	return nil
}

// Fragment partitions m under the selected strategy. The model must not be
// mutated while the call runs; the returned Partition shares no memory with it.
func Fragment(m *model.ProcessModel, opts Options) (*Partition, error) {
	if err := CheckOptions(opts); err != nil {
		return nil, err
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if err := model.ValidateProcess(m); err != nil {
		return nil, err
	}

	g, err := newGraph(m)
	if err != nil {
		return nil, err
	}

	p := &Partition{
		Strategy: opts.Strategy,
		owner:    make(map[string]int, len(m.Activities)),
	}
	if w, ok := g.unreachableWarning(); ok {
		p.Warnings = append(p.Warnings, w)
	}

	groups := partitioners[opts.Strategy](g, opts)
	for i, grp := range groups {
		frag := model.Fragment{
			ID:         fmt.Sprintf("%s-%d", opts.Strategy, i+1),
			Strategy:   opts.Strategy,
			ParentID:   grp.parent,
			Activities: grp.activities,
		}
		for _, a := range grp.activities {
			p.owner[a] = i
		}
		p.Fragments = append(p.Fragments, frag)
	}
	for i := range p.Fragments {
		g.annotate(&p.Fragments[i], p.owner, i)
	}
	p.Dependencies = g.dependencies(p)
	return p, nil
}

// byActivity places every reachable activity in its own fragment.
func byActivity(g *graph, _ Options) []group {
	var out []group
	for _, a := range g.idx.Model.Activities {
		if g.reached[a.ID] {
			out = append(out, group{activities: []string{a.ID}})
		}
	}
	return out
}

// byGateway groups activities joined directly by flows, or through
// intermediate events; every flow leaving a gateway opens a new fragment.
// An activity follows its first-declared incoming flow from a reachable
// node, so the result depends on flow order in the model, not on the order
// the graph is walked. Fragments are numbered by first visit breadth-first
// from the start event.
func byGateway(g *graph, _ Options) []group {
	var order []string
	pos := make(map[string]int)
	root := make(map[string]string)
	queued := map[string]bool{g.start: true}
	queue := []string{g.start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.idx.Kind(cur) == model.NodeActivity {
			pos[cur] = len(order)
			order = append(order, cur)
			root[cur] = cur
		}
		for _, fi := range g.idx.Outgoing[cur] {
			next := g.idx.Flow(fi).TargetRef
			if !queued[next] {
				queued[next] = true
				queue = append(queue, next)
			}
		}
	}

	find := func(a string) string {
		for root[a] != a {
			root[a] = root[root[a]]
			a = root[a]
		}
		return a
	}
	for _, a := range order {
		up, ok := g.joinedPredecessor(a)
		if !ok {
			continue
		}
		ra, ru := find(a), find(up)
		if ra == ru {
			continue
		}
		// The root visited first keeps the fragment number.
		if pos[ru] < pos[ra] {
			root[ra] = ru
		} else {
			root[ru] = ra
		}
	}

	index := make(map[string]int)
	var groups [][]string
	for _, a := range order {
		r := find(a)
		gi, ok := index[r]
		if !ok {
			gi = len(groups)
			index[r] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], a)
	}

	out := make([]group, len(groups))
	for i, acts := range groups {
		out[i] = group{activities: g.sourceOrder(acts)}
	}
	return out
}

// byHybrid splits gateway fragments larger than the threshold into
// single-activity fragments, keeping internal order.
func byHybrid(g *graph, opts Options) []group {
	var out []group
	for i, grp := range byGateway(g, opts) {
		if len(grp.activities) <= opts.Threshold {
			out = append(out, grp)
			continue
		}
		parent := fmt.Sprintf("%s-%d", model.StrategyGateway, i+1)
		for _, a := range grp.activities {
			out = append(out, group{activities: []string{a}, parent: parent})
		}
	}
	return out
}
