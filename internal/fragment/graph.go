package fragment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// graph is a validated process model plus the set of nodes reachable from
// its start event.
type graph struct {
	idx     *model.Index
	start   string
	reached map[string]bool
}

func newGraph(m *model.ProcessModel) (*graph, error) {
	idx := model.NewIndex(m)
	starts := idx.StartEvents()
	if len(starts) != 1 {
		return nil, &model.ModelError{Reason: fmt.Sprintf("expected exactly one start event, found %d", len(starts))}
	}
	g := &graph{
		idx:     idx,
		start:   starts[0].ID,
		reached: map[string]bool{starts[0].ID: true},
	}
	stack := []string{g.start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, fi := range idx.Outgoing[cur] {
			next := idx.Flow(fi).TargetRef
			if !g.reached[next] {
				g.reached[next] = true
				stack = append(stack, next)
			}
		}
	}

	endReached := false
	for _, e := range m.Events {
		if e.Kind == model.EventEnd && g.reached[e.ID] {
			endReached = true
			break
		}
	}
	if !endReached {
		return nil, &model.ModelError{NodeID: g.start, Reason: "no end event is reachable from the start event"}
	}
	return g, nil
}

// unreachableWarning lists every node not reachable from the start event.
func (g *graph) unreachableWarning() (model.Warning, bool) {
	var ids []string
	m := g.idx.Model
	for _, a := range m.Activities {
		if !g.reached[a.ID] {
			ids = append(ids, a.ID)
		}
	}
	for _, gw := range m.Gateways {
		if !g.reached[gw.ID] {
			ids = append(ids, gw.ID)
		}
	}
	for _, e := range m.Events {
		if !g.reached[e.ID] {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return model.Warning{}, false
	}
	return model.Warning{
		Kind:    model.WarningUnreachable,
		Message: fmt.Sprintf("%d node(s) unreachable from start event %q excluded from fragmentation: %s", len(ids), g.start, strings.Join(ids, ", ")),
		NodeIDs: ids,
	}, true
}

func (g *graph) sourceOrder(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		return g.idx.ActivityPos(out[i]) < g.idx.ActivityPos(out[j])
	})
	return out
}

// firstIncoming returns the lowest-index flow into id from a reachable node.
func (g *graph) firstIncoming(id string) (model.Flow, bool) {
	for _, fi := range g.idx.Incoming[id] {
		f := g.idx.Flow(fi)
		if g.reached[f.SourceRef] {
			return f, true
		}
	}
	return model.Flow{}, false
}

// joinedPredecessor follows the first-declared incoming flow of an activity
// back through intermediate events. It reports the activity found there, or
// false when the path starts at a gateway or the start event.
func (g *graph) joinedPredecessor(activity string) (string, bool) {
	seen := make(map[string]bool)
	cur := activity
	for {
		f, ok := g.firstIncoming(cur)
		if !ok {
			return "", false
		}
		src := f.SourceRef
		switch g.idx.Kind(src) {
		case model.NodeActivity:
			return src, true
		case model.NodeEvent:
			if seen[src] {
				return "", false
			}
			seen[src] = true
			cur = src
		default:
			return "", false
		}
	}
}

// annotate fills entry points, exit points and boundary markers. Only flows
// between reachable nodes are considered.
func (g *graph) annotate(f *model.Fragment, owner map[string]int, self int) {
	inside := func(id string) bool {
		i, ok := owner[id]
		return ok && i == self
	}
	boundarySeen := make(map[string]bool)
	addBoundary := func(id string) {
		if g.idx.Kind(id) == model.NodeActivity || boundarySeen[id] {
			return
		}
		boundarySeen[id] = true
		f.Boundary = append(f.Boundary, id)
	}

	f.EntryPoints = []string{}
	f.ExitPoints = []string{}
	for _, a := range f.Activities {
		entry, exit := false, false
		for _, fi := range g.idx.Incoming[a] {
			src := g.idx.Flow(fi).SourceRef
			if !g.reached[src] {
				continue
			}
			if !inside(src) {
				entry = true
			}
			addBoundary(src)
		}
		for _, fi := range g.idx.Outgoing[a] {
			dst := g.idx.Flow(fi).TargetRef
			if !inside(dst) {
				exit = true
			}
			addBoundary(dst)
		}
		if entry {
			f.EntryPoints = append(f.EntryPoints, a)
		}
		if exit {
			f.ExitPoints = append(f.ExitPoints, a)
		}
	}
}

// dependencies emits one FragmentDependency per flow into an activity and
// upstream fragment. Upstream activities are reached back through gateways
// and events; those sharing a fragment are folded into one dependency.
func (g *graph) dependencies(p *Partition) []model.FragmentDependency {
	deps := []model.FragmentDependency{}
	for _, f := range g.idx.Model.Flows {
		if !g.reached[f.SourceRef] || g.idx.Kind(f.TargetRef) != model.NodeActivity {
			continue
		}
		to, ok := p.owner[f.TargetRef]
		if !ok {
			continue
		}
		byFragment := make(map[int]int)
		for _, up := range g.idx.Predecessors(f.SourceRef) {
			from, ok := p.owner[up]
			if !ok || from == to {
				continue
			}
			if i, ok := byFragment[from]; ok {
				deps[i].FromActivityIDs = append(deps[i].FromActivityIDs, up)
				continue
			}
			byFragment[from] = len(deps)
			deps = append(deps, model.FragmentDependency{
				FromFragmentID:  p.Fragments[from].ID,
				ToFragmentID:    p.Fragments[to].ID,
				ViaFlowID:       f.ID,
				FromActivityID:  up,
				FromActivityIDs: []string{up},
				ToActivityID:    f.TargetRef,
			})
		}
	}
	return deps
}
