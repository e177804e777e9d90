package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// Request is the structured context handed to a Collaborator. A request
// with an empty ActivityID asks for process-wide rules.
type Request struct {
	ProcessName        string             `json:"process_name"`
	FragmentID         string             `json:"fragment_id,omitempty"`
	ActivityID         string             `json:"activity_id,omitempty"`
	ActivityName       string             `json:"activity_name,omitempty"`
	ActivityType       model.ActivityType `json:"activity_type,omitempty"`
	Predecessors       []string           `json:"predecessors,omitempty"`
	Successors         []string           `json:"successors,omitempty"`
	FragmentActivities []string           `json:"fragment_activities,omitempty"`
	ProcessActivities  []string           `json:"process_activities,omitempty"`
}

// ProcessWide reports whether the request is for the whole process.
func (r Request) ProcessWide() bool {
	return r.ActivityID == ""
}

// Collaborator produces candidate rules from an external source. It is
// treated as unreliable: errors, timeouts and malformed output all resolve
// to the template path.
type Collaborator interface {
	GenerateRules(ctx context.Context, req Request) ([]model.PolicyRule, error)
}

// CollaboratorFunc adapts a function to the Collaborator interface.
type CollaboratorFunc func(ctx context.Context, req Request) ([]model.PolicyRule, error)

// GenerateRules calls f.
func (f CollaboratorFunc) GenerateRules(ctx context.Context, req Request) ([]model.PolicyRule, error) {
	return f(ctx, req)
}

// ErrNoCollaborator is the fallback reason when llm mode is requested but no
// collaborator is configured.
var ErrNoCollaborator = errors.New("no rule-generation collaborator configured")

// ErrEmptyResponse is returned when a collaborator yields no rules.
var ErrEmptyResponse = errors.New("collaborator returned no rules")

// acceptCandidates validates collaborator output for one activity and
// normalizes the fields the collaborator does not own.
func acceptCandidates(rules []model.PolicyRule, req Request, fragmentID string) ([]model.PolicyRule, error) {
	if len(rules) == 0 {
		return nil, ErrEmptyResponse
	}
	out := make([]model.PolicyRule, 0, len(rules))
	for i, r := range rules {
		if r.TargetActivityID == "" {
			r.TargetActivityID = req.ActivityID
		}
		if r.TargetActivityID != req.ActivityID {
			return nil, fmt.Errorf("candidate %d targets %q, not %q", i, r.TargetActivityID, req.ActivityID)
		}
		if err := model.ValidateRule(&r); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		if r.Assigner == "" {
			r.Assigner = DefaultAssigner
		}
		r.ID = ""
		r.FragmentID = fragmentID
		r.PeerFragmentID = ""
		r.Origin = model.OriginLLM
		r.BPSource = ""
		r.BPTarget = ""
		r.Constraints = append([]model.Constraint(nil), r.Constraints...)
		out = append(out, r)
	}
	return out, nil
}
