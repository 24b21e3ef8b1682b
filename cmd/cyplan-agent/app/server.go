// Package app provides the CyPlan agent server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/cyplan/cmd/cyplan-agent/app/options"
	"github.com/kart-io/cyplan/internal/cyplan"
	"github.com/kart-io/cyplan/pkg/infra/app"
)

// commandDesc is the description of the command.
const commandDesc = `CyPlan Agent Service

The conversational cybersecurity planning assistant.

This server provides:
  - A streaming tool-calling agent over chat threads (server-sent events)
  - Ontology-grounded knowledge retrieval and risk scoring
  - Document library ingestion and semantic search
  - Plan prompts, response validation and plan summaries`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(cyplan.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) func() error {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run(ctx)
	}
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
