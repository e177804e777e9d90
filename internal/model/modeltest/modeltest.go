// Package modeltest provides process models shared by tests across packages.
package modeltest

import (
	"fmt"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// ApprovalProcess returns the reference review process:
//
//	start -> Submit Request -> Review Request -> XOR split
//	  -Yes-> Approve Request -\
//	  -No--> Reject Request  --> XOR merge -> end
func ApprovalProcess() *model.ProcessModel {
	return &model.ProcessModel{
		ID:   "proc-approval",
		Name: "Purchase Approval",
		Activities: []model.Activity{
			{ID: "submit", Name: "Submit Request", Type: model.ActivityTask},
			{ID: "review", Name: "Review Request", Type: model.ActivityTask},
			{ID: "approve", Name: "Approve Request", Type: model.ActivityTask},
			{ID: "reject", Name: "Reject Request", Type: model.ActivityTask},
		},
		Gateways: []model.Gateway{
			{ID: "gw_split", Name: "Approved?", Kind: model.GatewayExclusive},
			{ID: "gw_merge", Kind: model.GatewayExclusive},
		},
		Events: []model.Event{
			{ID: "start", Name: "Request received", Kind: model.EventStart},
			{ID: "end", Name: "Done", Kind: model.EventEnd},
		},
		Flows: []model.Flow{
			{ID: "f1", SourceRef: "start", TargetRef: "submit"},
			{ID: "f2", SourceRef: "submit", TargetRef: "review"},
			{ID: "f3", SourceRef: "review", TargetRef: "gw_split"},
			{ID: "f4", SourceRef: "gw_split", TargetRef: "approve", Label: "Yes"},
			{ID: "f5", SourceRef: "gw_split", TargetRef: "reject", Label: "No"},
			{ID: "f6", SourceRef: "approve", TargetRef: "gw_merge"},
			{ID: "f7", SourceRef: "reject", TargetRef: "gw_merge"},
			{ID: "f8", SourceRef: "gw_merge", TargetRef: "end"},
		},
	}
}

// Linear returns start -> a1 -> ... -> an -> end with the given names.
func Linear(names ...string) *model.ProcessModel {
	m := &model.ProcessModel{
		ID:   "proc-linear",
		Name: "Linear",
		Events: []model.Event{
			{ID: "start", Kind: model.EventStart},
			{ID: "end", Kind: model.EventEnd},
		},
	}
	prev := "start"
	for i, name := range names {
		id := fmt.Sprintf("a%d", i+1)
		m.Activities = append(m.Activities, model.Activity{ID: id, Name: name, Type: model.ActivityTask})
		m.Flows = append(m.Flows, model.Flow{ID: fmt.Sprintf("f%d", i+1), SourceRef: prev, TargetRef: id})
		prev = id
	}
	m.Flows = append(m.Flows, model.Flow{ID: fmt.Sprintf("f%d", len(names)+1), SourceRef: prev, TargetRef: "end"})
	return m
}

// Shape describes a generated process: a sequence of segments joined by
// gateways. Each segment lists the branch lengths of one gateway block;
// a block with a single branch is a plain sequence.
type Shape struct {
	Blocks [][]int
	Kinds  []model.GatewayKind
}

// Build materializes a Shape into a well-formed process model. Activity ids
// are a1..an in creation order; every branch rejoins at a merge gateway.
func (s Shape) Build() *model.ProcessModel {
	m := &model.ProcessModel{
		ID:   "proc-generated",
		Name: "Generated",
		Events: []model.Event{
			{ID: "start", Kind: model.EventStart},
			{ID: "end", Kind: model.EventEnd},
		},
	}
	nAct, nFlow, nGw := 0, 0, 0
	flow := func(from, to, label string) {
		nFlow++
		m.Flows = append(m.Flows, model.Flow{ID: fmt.Sprintf("f%d", nFlow), SourceRef: from, TargetRef: to, Label: label})
	}
	chain := func(from string, n int, label string) string {
		prev := from
		for i := 0; i < n; i++ {
			nAct++
			id := fmt.Sprintf("a%d", nAct)
			m.Activities = append(m.Activities, model.Activity{ID: id, Name: fmt.Sprintf("Step %d", nAct), Type: model.ActivityTask})
			if i == 0 {
				flow(prev, id, label)
			} else {
				flow(prev, id, "")
			}
			prev = id
		}
		return prev
	}
	gateway := func(kind model.GatewayKind) string {
		nGw++
		id := fmt.Sprintf("g%d", nGw)
		m.Gateways = append(m.Gateways, model.Gateway{ID: id, Kind: kind})
		return id
	}

	cur := "start"
	for bi, branches := range s.Blocks {
		if len(branches) == 0 {
			continue
		}
		if len(branches) == 1 {
			cur = chain(cur, max(branches[0], 1), "")
			continue
		}
		kind := model.GatewayExclusive
		if bi < len(s.Kinds) && s.Kinds[bi].IsValid() {
			kind = s.Kinds[bi]
		}
		split := gateway(kind)
		flow(cur, split, "")
		merge := gateway(kind)
		for i, n := range branches {
			last := chain(split, max(n, 1), fmt.Sprintf("branch-%d", i+1))
			flow(last, merge, "")
		}
		cur = merge
	}
	if len(m.Activities) == 0 {
		cur = chain(cur, 1, "")
	}
	flow(cur, "end", "")
	return m
}
