package cli

import (
	"context"

	"github.com/telhawk-systems/debughawk/internal/config"
	"github.com/telhawk-systems/debughawk/internal/dispatcher"
	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/registry"
	"github.com/telhawk-systems/debughawk/internal/sandbox"
)

// pipeline is the dispatch stack shared by serve and dispatch.
type pipeline struct {
	registry   *registry.Registry
	host       *sandbox.Host
	dispatcher *dispatcher.Dispatcher
}

// buildPipeline assembles registry, sandbox host and dispatcher from cfg.
// Registry conflicts are logged and the conflicting entries skipped.
func buildPipeline(cfg *config.Config, logger *logging.Logger, collab logging.Collaborator) *pipeline {
	reg, err := registry.New(registry.Options{
		Plugins:  cfg.Sandbox.Types,
		Fallback: cfg.Sandbox.FallbackEnabled(),
	})
	if err != nil {
		logger.Warn("registry conflicts ignored", logging.Error(err))
	}

	p := &pipeline{registry: reg}
	opts := []dispatcher.Option{
		dispatcher.WithCollaborator(collab),
		dispatcher.WithVerbose(cfg.Logging.Verbose),
	}

	if cfg.Sandbox.Enabled() {
		p.host = sandbox.New(sandbox.Config{
			PluginDir:      cfg.Sandbox.PluginDir,
			Timeout:        cfg.Sandbox.Timeout,
			CompileCache:   cfg.Sandbox.CompileCache,
			MaxMemoryPages: cfg.Sandbox.MaxMemoryPages,
		}, collab)
		p.dispatcher = dispatcher.New(reg, p.host, opts...)
	} else {
		p.dispatcher = dispatcher.New(reg, nil, opts...)
	}
	return p
}

func (p *pipeline) Close(ctx context.Context) error {
	if p.host == nil {
		return nil
	}
	return p.host.Close(ctx)
}
