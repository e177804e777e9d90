// Package events carries analysis outcomes over a message bus. Each event
// type names its own subject, so publishers never pair topics by hand.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

const (
	TopicAnalysisCompleted = "odrlfrag.analysis.completed"
	TopicAnalysisFailed    = "odrlfrag.analysis.failed"
	TopicConflictsDetected = "odrlfrag.conflicts.detected"

	// TopicAll matches every odrlfrag topic.
	TopicAll = "odrlfrag.>"
)

// Event is a payload that knows the subject it is published on.
type Event interface {
	Topic() string
}

// AnalysisCompleted summarizes a successful run.
type AnalysisCompleted struct {
	RunID       string         `json:"run_id"`
	ProcessID   string         `json:"process_id"`
	ProcessName string         `json:"process_name"`
	Strategy    model.Strategy `json:"strategy"`
	Mode        model.Mode     `json:"mode"`
	Fragments   int            `json:"fragments"`
	Rules       int            `json:"rules"`
	Conflicts   int            `json:"conflicts"`
	Fallbacks   int            `json:"fallbacks"`
	CompletedAt time.Time      `json:"completed_at"`
}

func (AnalysisCompleted) Topic() string { return TopicAnalysisCompleted }

// AnalysisFailed reports a run that stopped at a stage.
type AnalysisFailed struct {
	RunID     string    `json:"run_id"`
	ProcessID string    `json:"process_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

func (AnalysisFailed) Topic() string { return TopicAnalysisFailed }

// ConflictsDetected carries the findings of a run that found any.
type ConflictsDetected struct {
	RunID     string                  `json:"run_id"`
	ProcessID string                  `json:"process_id"`
	Conflicts []model.ConflictFinding `json:"conflicts"`
}

func (ConflictsDetected) Topic() string { return TopicConflictsDetected }

// Publisher emits events on their own topics.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Message is one payload received from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Subscriber receives messages from the bus.
type Subscriber interface {
	// Subscribe delivers messages matching topic (wildcards allowed) until
	// the returned cancel is called, which also closes the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}

// Decode unmarshals msg into the event type registered for its subject.
func Decode(msg Message) (Event, error) {
	var ev Event
	switch msg.Subject {
	case TopicAnalysisCompleted:
		ev = new(AnalysisCompleted)
	case TopicAnalysisFailed:
		ev = new(AnalysisFailed)
	case TopicConflictsDetected:
		ev = new(ConflictsDetected)
	default:
		return nil, fmt.Errorf("unknown event subject %q", msg.Subject)
	}
	if err := json.Unmarshal(msg.Data, ev); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", msg.Subject, err)
	}
	return ev, nil
}

// Discard is a Publisher that drops every event; used when nats_url is unset.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

func (Discard) Close() error { return nil }

// NewPublisher returns a NATS publisher for url, or Discard when url is
// empty.
func NewPublisher(url string) (Publisher, error) {
	if url == "" {
		return Discard{}, nil
	}
	pub, err := NewNATSPublisher(url)
	if err != nil {
		return nil, err
	}
	return pub, nil
}
