package model

// ActivityType classifies a BPMN activity.
type ActivityType string

const (
	ActivityTask       ActivityType = "task"
	ActivitySubprocess ActivityType = "subprocess"
)

// IsValid checks whether the activity type is a known value.
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivityTask, ActivitySubprocess:
		return true
	}
	return false
}

// GatewayKind classifies a branching/merging node.
type GatewayKind string

const (
	GatewayExclusive GatewayKind = "exclusive"
	GatewayParallel  GatewayKind = "parallel"
	GatewayInclusive GatewayKind = "inclusive"
)

// IsValid checks whether the gateway kind is a known value.
func (k GatewayKind) IsValid() bool {
	switch k {
	case GatewayExclusive, GatewayParallel, GatewayInclusive:
		return true
	}
	return false
}

// IsDecision reports whether the gateway selects among outcomes
// (exclusive or inclusive), as opposed to forking every branch.
func (k GatewayKind) IsDecision() bool {
	return k == GatewayExclusive || k == GatewayInclusive
}

// EventKind classifies a BPMN event.
type EventKind string

const (
	EventStart        EventKind = "start"
	EventEnd          EventKind = "end"
	EventIntermediate EventKind = "intermediate"
)

// IsValid checks whether the event kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventStart, EventEnd, EventIntermediate:
		return true
	}
	return false
}

// NodeKind tells which collection a node id belongs to.
type NodeKind int

const (
	NodeUnknown NodeKind = iota
	NodeActivity
	NodeGateway
	NodeEvent
)

func (k NodeKind) String() string {
	switch k {
	case NodeActivity:
		return "activity"
	case NodeGateway:
		return "gateway"
	case NodeEvent:
		return "event"
	}
	return "unknown"
}

// Activity is a task or subprocess.
type Activity struct {
	ID   string       `json:"id" yaml:"id"`
	Name string       `json:"name" yaml:"name"`
	Type ActivityType `json:"type" yaml:"type"`
}

// Gateway is a branching or merging node.
type Gateway struct {
	ID   string      `json:"id" yaml:"id"`
	Name string      `json:"name,omitempty" yaml:"name,omitempty"`
	Kind GatewayKind `json:"kind" yaml:"kind"`
}

// Event is a start, end, or intermediate event.
type Event struct {
	ID   string    `json:"id" yaml:"id"`
	Name string    `json:"name,omitempty" yaml:"name,omitempty"`
	Kind EventKind `json:"kind" yaml:"kind"`
}

// Flow is a sequence flow between two nodes.
type Flow struct {
	ID        string `json:"id" yaml:"id"`
	SourceRef string `json:"source_ref" yaml:"source_ref"`
	TargetRef string `json:"target_ref" yaml:"target_ref"`
	Label     string `json:"label,omitempty" yaml:"label,omitempty"`
}

// ProcessModel is the normalized in-memory BPMN graph. Collections keep
// declaration order; callers must not mutate a model after it is handed to
// the pipeline.
type ProcessModel struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Activities []Activity `json:"activities" yaml:"activities"`
	Gateways   []Gateway  `json:"gateways,omitempty" yaml:"gateways,omitempty"`
	Events     []Event    `json:"events" yaml:"events"`
	Flows      []Flow     `json:"flows" yaml:"flows"`
}

// Index is a read-only lookup view over a ProcessModel.
type Index struct {
	Model *ProcessModel

	activityPos map[string]int
	gatewayPos  map[string]int
	eventPos    map[string]int

	// Outgoing and Incoming hold flow indexes in declaration order.
	Outgoing map[string][]int
	Incoming map[string][]int
}

// NewIndex builds lookup tables for m. It does not validate the model.
func NewIndex(m *ProcessModel) *Index {
	idx := &Index{
		Model:       m,
		activityPos: make(map[string]int, len(m.Activities)),
		gatewayPos:  make(map[string]int, len(m.Gateways)),
		eventPos:    make(map[string]int, len(m.Events)),
		Outgoing:    make(map[string][]int),
		Incoming:    make(map[string][]int),
	}
	for i, a := range m.Activities {
		if _, dup := idx.activityPos[a.ID]; !dup {
			idx.activityPos[a.ID] = i
		}
	}
	for i, g := range m.Gateways {
		if _, dup := idx.gatewayPos[g.ID]; !dup {
			idx.gatewayPos[g.ID] = i
		}
	}
	for i, e := range m.Events {
		if _, dup := idx.eventPos[e.ID]; !dup {
			idx.eventPos[e.ID] = i
		}
	}
	for i, f := range m.Flows {
		idx.Outgoing[f.SourceRef] = append(idx.Outgoing[f.SourceRef], i)
		idx.Incoming[f.TargetRef] = append(idx.Incoming[f.TargetRef], i)
	}
	return idx
}

// Kind returns the kind of node id refers to.
func (x *Index) Kind(id string) NodeKind {
	if _, ok := x.activityPos[id]; ok {
		return NodeActivity
	}
	if _, ok := x.gatewayPos[id]; ok {
		return NodeGateway
	}
	if _, ok := x.eventPos[id]; ok {
		return NodeEvent
	}
	return NodeUnknown
}

// Activity returns the activity with the given id.
func (x *Index) Activity(id string) (Activity, bool) {
	i, ok := x.activityPos[id]
	if !ok {
		return Activity{}, false
	}
	return x.Model.Activities[i], true
}

// ActivityPos returns the declaration position of an activity, or -1.
func (x *Index) ActivityPos(id string) int {
	if i, ok := x.activityPos[id]; ok {
		return i
	}
	return -1
}

// Gateway returns the gateway with the given id.
func (x *Index) Gateway(id string) (Gateway, bool) {
	i, ok := x.gatewayPos[id]
	if !ok {
		return Gateway{}, false
	}
	return x.Model.Gateways[i], true
}

// Event returns the event with the given id.
func (x *Index) Event(id string) (Event, bool) {
	i, ok := x.eventPos[id]
	if !ok {
		return Event{}, false
	}
	return x.Model.Events[i], true
}

// Flow returns the flow at declaration position i.
func (x *Index) Flow(i int) Flow {
	return x.Model.Flows[i]
}

// StartEvents returns start events in declaration order.
func (x *Index) StartEvents() []Event {
	var out []Event
	for _, e := range x.Model.Events {
		if e.Kind == EventStart {
			out = append(out, e)
		}
	}
	return out
}

// Predecessors returns the activity ids directly or transitively upstream of
// node through gateways and events only, in activity declaration order.
// When node itself is an activity it is the only result.
func (x *Index) Predecessors(node string) []string {
	if x.Kind(node) == NodeActivity {
		return []string{node}
	}
	return x.walk(node, x.Incoming, func(f Flow) string { return f.SourceRef })
}

// Successors returns the activity ids directly or transitively downstream of
// node through gateways and events only, in activity declaration order.
func (x *Index) Successors(node string) []string {
	if x.Kind(node) == NodeActivity {
		return []string{node}
	}
	return x.walk(node, x.Outgoing, func(f Flow) string { return f.TargetRef })
}

func (x *Index) walk(node string, edges map[string][]int, next func(Flow) string) []string {
	seen := map[string]bool{node: true}
	found := map[string]bool{}
	stack := []string{node}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, fi := range edges[cur] {
			n := next(x.Model.Flows[fi])
			if seen[n] {
				continue
			}
			seen[n] = true
			if x.Kind(n) == NodeActivity {
				found[n] = true
				continue
			}
			stack = append(stack, n)
		}
	}
	return x.inDeclarationOrder(found)
}

func (x *Index) inDeclarationOrder(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for _, a := range x.Model.Activities {
		if set[a.ID] {
			out = append(out, a.ID)
			delete(set, a.ID)
		}
	}
	return out
}

// NeighborActivities returns the activities adjacent to id across the flow
// graph, skipping over gateways and events.
func (x *Index) NeighborActivities(id string) (before, after []string) {
	prev := map[string]bool{}
	for _, fi := range x.Incoming[id] {
		for _, p := range x.Predecessors(x.Model.Flows[fi].SourceRef) {
			prev[p] = true
		}
	}
	next := map[string]bool{}
	for _, fi := range x.Outgoing[id] {
		for _, s := range x.Successors(x.Model.Flows[fi].TargetRef) {
			next[s] = true
		}
	}
	return x.inDeclarationOrder(prev), x.inDeclarationOrder(next)
}
