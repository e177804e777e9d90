// Package bpmn loads process models and process-level policies from disk.
//
// BPMN 2.0 XML is read from the first <process> element: tasks and
// subprocesses become activities, gateways and events keep their kind, and
// sequence flows keep their name as the outcome label. YAML and JSON files
// carry a ProcessModel directly. Loaded models are not validated here; the
// pipeline does that before fragmenting.
package bpmn

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// ErrNoProcess is returned when a BPMN document has no process element.
var ErrNoProcess = errors.New("no process element found")

type definitions struct {
	Processes []process `xml:"process"`
}

type process struct {
	ID       string    `xml:"id,attr"`
	Name     string    `xml:"name,attr"`
	Elements []element `xml:",any"`
}

type element struct {
	XMLName   xml.Name
	ID        string `xml:"id,attr"`
	Name      string `xml:"name,attr"`
	SourceRef string `xml:"sourceRef,attr"`
	TargetRef string `xml:"targetRef,attr"`
}

var activityTypes = map[string]model.ActivityType{
	"task":             model.ActivityTask,
	"userTask":         model.ActivityTask,
	"serviceTask":      model.ActivityTask,
	"manualTask":       model.ActivityTask,
	"scriptTask":       model.ActivityTask,
	"sendTask":         model.ActivityTask,
	"receiveTask":      model.ActivityTask,
	"businessRuleTask": model.ActivityTask,
	"subProcess":       model.ActivitySubprocess,
	"callActivity":     model.ActivitySubprocess,
	"transaction":      model.ActivitySubprocess,
}

var gatewayKinds = map[string]model.GatewayKind{
	"exclusiveGateway":  model.GatewayExclusive,
	"eventBasedGateway": model.GatewayExclusive,
	"inclusiveGateway":  model.GatewayInclusive,
	"complexGateway":    model.GatewayInclusive,
	"parallelGateway":   model.GatewayParallel,
}

var eventKinds = map[string]model.EventKind{
	"startEvent":             model.EventStart,
	"endEvent":               model.EventEnd,
	"intermediateCatchEvent": model.EventIntermediate,
	"intermediateThrowEvent": model.EventIntermediate,
	"boundaryEvent":          model.EventIntermediate,
}

// DecodeXML reads a BPMN 2.0 document. Elements the model has no place for
// (lanes, data objects, annotations, diagram info) are skipped.
func DecodeXML(r io.Reader) (*model.ProcessModel, error) {
	var defs definitions
	if err := xml.NewDecoder(r).Decode(&defs); err != nil {
		return nil, fmt.Errorf("decode bpmn xml: %w", err)
	}
	if len(defs.Processes) == 0 {
		return nil, ErrNoProcess
	}
	p := defs.Processes[0]

	m := &model.ProcessModel{ID: p.ID, Name: p.Name}
	if m.Name == "" {
		m.Name = p.ID
	}
	for _, el := range p.Elements {
		tag := el.XMLName.Local
		if t, ok := activityTypes[tag]; ok {
			m.Activities = append(m.Activities, model.Activity{ID: el.ID, Name: el.Name, Type: t})
			continue
		}
		if k, ok := gatewayKinds[tag]; ok {
			m.Gateways = append(m.Gateways, model.Gateway{ID: el.ID, Name: el.Name, Kind: k})
			continue
		}
		if k, ok := eventKinds[tag]; ok {
			m.Events = append(m.Events, model.Event{ID: el.ID, Name: el.Name, Kind: k})
			continue
		}
		if tag == "sequenceFlow" {
			m.Flows = append(m.Flows, model.Flow{
				ID:        el.ID,
				SourceRef: el.SourceRef,
				TargetRef: el.TargetRef,
				Label:     strings.TrimSpace(el.Name),
			})
		}
	}
	for i, a := range m.Activities {
		if a.Name == "" {
			m.Activities[i].Name = a.ID
		}
	}
	return m, nil
}

// DecodeYAML reads a ProcessModel written as YAML or JSON. Unknown fields
// are rejected so typos do not silently drop nodes.
func DecodeYAML(r io.Reader) (*model.ProcessModel, error) {
	var m model.ProcessModel
	if err := strictYAML(r, &m); err != nil {
		return nil, fmt.Errorf("decode process model: %w", err)
	}
	return &m, nil
}

// DecodePolicy reads a process-level ODRL policy written as JSON or YAML.
func DecodePolicy(r io.Reader) (*model.BPPolicy, error) {
	var p model.BPPolicy
	if err := strictYAML(r, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return &p, nil
}

func strictYAML(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	return nil
}

// Load reads a process model, choosing the decoder by file extension.
// .bpmn and .xml are BPMN XML; .yaml, .yml and .json are model documents.
func Load(path string) (*model.ProcessModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read process model: %w", err)
	}
	var m *model.ProcessModel
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".bpmn", ".xml":
		m, err = DecodeXML(bytes.NewReader(data))
	case ".yaml", ".yml", ".json":
		m, err = DecodeYAML(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported process model format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadPolicy reads a process-level policy file.
func LoadPolicy(path string) (*model.BPPolicy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	defer f.Close()
	p, err := DecodePolicy(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
