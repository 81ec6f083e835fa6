package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/milesziemer/smithy-language-server/internal/assembly"
	"github.com/milesziemer/smithy-language-server/internal/features"
	"github.com/milesziemer/smithy-language-server/internal/serverstate"
	"github.com/milesziemer/smithy-language-server/internal/watch"
)

// watchCommand runs the lifecycle engine headlessly against one or more
// workspace roots, driven by real filesystem events instead of LSP
// notifications from an editor — useful for local testing and demos
// of the incremental-rebuild algorithm without a client attached.
func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Watch one or more Smithy project roots and log diagnostics as files change",
		ArgsUsage: "[ROOT...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			roots := cmd.Args().Slice()
			if len(roots) == 0 {
				roots = []string{"."}
			}

			state := serverstate.New()
			for _, root := range roots {
				if err := state.AddWorkspaceFolder(root); err != nil {
					log.Printf("watch: loading %s: %v", root, err)
				}
				logProjectDiagnostics(state, root)
			}

			w, err := watch.NewWatcher(roots)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("watch: watching %d root(s), press Ctrl+C to stop", len(roots))
			return w.Run(ctx, &loggingHandler{state: state})
		},
	}
}

// loggingHandler adapts serverstate.State to watch.Handler, logging the
// resulting diagnostics after each dispatched filesystem event.
type loggingHandler struct {
	state *serverstate.State
}

func (h *loggingHandler) OnCreate(path string) error { return h.handle(path, h.state.OnCreate) }
func (h *loggingHandler) OnChange(path string) error { return h.handle(path, h.state.OnChange) }
func (h *loggingHandler) OnDelete(path string) error { return h.handle(path, h.state.OnDelete) }

func (h *loggingHandler) handle(path string, fn func(string) error) error {
	err := fn(path)
	if err != nil {
		log.Printf("watch: %s: %v", path, err)
		return err
	}
	if p := h.state.ProjectFor(path); p != nil {
		for _, d := range features.Diagnostics(path, p.Result(), assembly.SeverityNote) {
			log.Printf("watch: %s:%d: %s", path, d.Range.Start.Line+1, d.Message)
		}
	}
	return nil
}

func logProjectDiagnostics(state *serverstate.State, root string) {
	p := state.ProjectAtRoot(root)
	if p == nil {
		return
	}
	for path := range p.Files() {
		for _, d := range features.Diagnostics(path, p.Result(), assembly.SeverityNote) {
			log.Printf("watch: %s:%d: %s", path, d.Range.Start.Line+1, d.Message)
		}
	}
}
