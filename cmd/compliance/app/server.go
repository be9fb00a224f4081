// Package app provides the compliance server application.
package app

import (
	"fmt"

	"github.com/kart-io/compliance-x/internal/compliance"
	"github.com/kart-io/compliance-x/pkg/infra/app"
)

const (
	// Name is the name of the application.
	Name = "compliance-server"

	// commandDesc is the description of the command.
	commandDesc = `Compliance Analysis Service

Analyzes documents against versioned regulatory rule sets using an LLM.

This server provides:
  - Asynchronous two-phase document analysis (rule classification, deep analysis)
  - Point-in-time rule catalogs with effective date ranges
  - Result caching and analysis history per user
  - Pluggable LLM providers (OpenAI, Ollama)`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := compliance.NewOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run contains the main logic for initializing and running the server.
func run(opts *compliance.Options) app.RunFunc {
	return func() error {
		server, err := compliance.NewApp(opts)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run()
	}
}
