package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alfredjeanlab/odrlfrag/internal/pipeline"
)

// Object is one encoded analysis ready for a destination.
type Object struct {
	Key       string
	RunID     string
	ProcessID string
	Data      []byte
}

// Destination is an export target (directory, S3, git).
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write stores obj.Data under obj.Key.
	Write(ctx context.Context, obj Object) error
}

// Exporter encodes a result once and writes it to every destination.
type Exporter struct {
	destinations []Destination
	prefix       string
	logger       *slog.Logger
}

// NewExporter creates an exporter. prefix is prepended to every key.
func NewExporter(destinations []Destination, prefix string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exporter{
		destinations: destinations,
		prefix:       prefix,
		logger:       logger,
	}
}

// Len reports the number of configured destinations.
func (e *Exporter) Len() int {
	return len(e.destinations)
}

// Export writes res for runID to all destinations and returns the key used.
// A failing destination does not stop the others; their errors are logged
// and returned joined.
func (e *Exporter) Export(ctx context.Context, runID string, res *pipeline.Result) (string, error) {
	var buf bytes.Buffer
	if err := ExportJSONL(runID, res, &buf); err != nil {
		return "", err
	}
	obj := Object{
		Key:       Key(e.prefix, res.Process.ID, runID),
		RunID:     runID,
		ProcessID: res.Process.ID,
		Data:      buf.Bytes(),
	}

	var errs []error
	for _, dest := range e.destinations {
		if err := dest.Write(ctx, obj); err != nil {
			e.logger.Error("export destination write failed", "destination", dest.Name(), "key", obj.Key, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
			continue
		}
		e.logger.Debug("export written", "destination", dest.Name(), "key", obj.Key)
	}

	e.logger.Info("export completed", "run_id", runID, "destinations", len(e.destinations), "failed", len(errs), "bytes", len(obj.Data))
	return obj.Key, errors.Join(errs...)
}
