package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/milesziemer/smithy-language-server/internal/lspserver"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the language server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stdio",
				Usage: "Communicate over stdin/stdout (the only supported transport)",
				Value: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !cmd.Bool("stdio") {
				return fmt.Errorf("serve: only --stdio is supported")
			}
			return lspserver.New().RunStdio(ctx)
		},
	}
}
