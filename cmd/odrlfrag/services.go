package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/odrlfrag/internal/config"
	"github.com/alfredjeanlab/odrlfrag/internal/events"
	"github.com/alfredjeanlab/odrlfrag/internal/export"
	"github.com/alfredjeanlab/odrlfrag/internal/llm"
	"github.com/alfredjeanlab/odrlfrag/internal/policy"
	"github.com/alfredjeanlab/odrlfrag/internal/store"
	"github.com/alfredjeanlab/odrlfrag/internal/store/postgres"
)

// newCollaborator returns the LLM client, or nil when llm_url is unset so
// that llm mode falls back to templates.
func newCollaborator(c *config.Config) policy.Collaborator {
	if c.LLMURL == "" {
		return nil
	}
	return llm.New(c.LLMURL, c.LLMToken, llm.WithModel(c.LLMModel))
}

// openStore connects to database_url.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("no database configured (set database_url or ODRLFRAG_DATABASE_URL)")
	}
	s, err := postgres.New(ctx, c.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newExporter builds an exporter for every configured destination. It
// returns nil when none is configured.
func newExporter(ctx context.Context, c *config.Config) (*export.Exporter, error) {
	var dests []export.Destination
	if c.ExportDir != "" {
		dests = append(dests, export.NewFileDestination(c.ExportDir))
	}
	if c.ExportS3Bucket != "" {
		d, err := export.NewS3Destination(ctx, c.ExportS3Bucket, c.ExportS3Region, c.ExportS3Endpoint)
		if err != nil {
			return nil, err
		}
		dests = append(dests, d)
	}
	if c.ExportGitRepo != "" {
		dests = append(dests, export.NewGitDestination(c.ExportGitRepo, c.ExportGitBranch))
	}
	if len(dests) == 0 {
		return nil, nil
	}
	return export.NewExporter(dests, c.ExportPrefix, logger), nil
}

// newPublisher returns a NATS publisher, or events.Discard without nats_url.
func newPublisher(c *config.Config) (events.Publisher, error) {
	pub, err := events.NewPublisher(c.NATSURL)
	if err != nil {
		return nil, err
	}
	if c.NATSURL != "" {
		logger.Debug("events enabled", "nats_url", c.NATSURL)
	}
	return pub, nil
}
