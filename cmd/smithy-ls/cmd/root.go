package cmd

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/milesziemer/smithy-language-server/internal/version"
)

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "smithy-ls",
		Usage:   "Language server for Smithy projects",
		Version: version.Version(),
		Description: `smithy-ls implements the project and document lifecycle engine
for editing Smithy models: workspace/build-config resolution, incremental
model assembly, and the editor-facing language features built on top of it.

Examples:
  smithy-ls serve --stdio
  smithy-ls watch .
  smithy-ls version`,
		Commands: []*cli.Command{
			serveCommand(),
			watchCommand(),
			versionCommand(),
		},
	}
}

// Execute runs the CLI application.
func Execute() error {
	return NewApp().Run(context.Background(), os.Args)
}
