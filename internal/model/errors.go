package model

import "fmt"

// ModelError reports a malformed or disconnected process graph. NodeID and
// FlowID name the offending element when one is known.
type ModelError struct {
	NodeID string
	FlowID string
	Reason string
}

func (e *ModelError) Error() string {
	switch {
	case e.FlowID != "" && e.NodeID != "":
		return fmt.Sprintf("model error: flow %q: node %q: %s", e.FlowID, e.NodeID, e.Reason)
	case e.FlowID != "":
		return fmt.Sprintf("model error: flow %q: %s", e.FlowID, e.Reason)
	case e.NodeID != "":
		return fmt.Sprintf("model error: node %q: %s", e.NodeID, e.Reason)
	}
	return "model error: " + e.Reason
}

// ConfigurationError reports an invalid strategy, directive, threshold, or
// other run setting. It is raised before any processing begins.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("configuration error: %s=%q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Pipeline stage names used in StageError.
const (
	StageConfigure = "configure"
	StageFragment  = "fragment"
	StageGenerate  = "generate"
	StageCheck     = "check"
	StageSummarize = "summarize"
)

// StageError attaches the failing pipeline stage to a fatal error.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
