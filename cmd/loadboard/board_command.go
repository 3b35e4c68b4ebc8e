package main

import (
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"loadboard/internal/board"
	"loadboard/internal/broadcast"
	"loadboard/internal/client"
	"loadboard/internal/reconcile"
)

func newBoardCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Render the dispatch board",
		Long: "Render the load-priority queue and the unqueued orders.\n\n" +
			"With --watch the board follows the server's broadcast channel and redraws on every change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := ctx.newClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			opts := board.Options{Color: !noColor && board.IsTerminal(out)}

			crews, err := cl.ListCrews(cmd.Context())
			if err != nil {
				return wrapAPIError(err, cl.BaseURL())
			}
			opts.Crews = make(map[string]string, len(crews))
			for _, crew := range crews {
				opts.Crews[crew.ID] = crew.Name
			}

			if !watch {
				engine, err := ctx.startEngine(cmd.Context(), cl, nil)
				if err != nil {
					return err
				}
				defer engine.Stop()
				return board.Render(out, engine.View(), opts)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer stop()

			logger := ctx.cliLogger()
			manager := broadcast.NewManager(cl, logger, broadcast.WithBackoff(500*time.Millisecond))
			defer manager.Wait()
			engine, err := ctx.startEngine(runCtx, cl, client.NewFeed(manager, logger))
			if err != nil {
				return err
			}
			defer engine.Stop()
			return board.Watch(runCtx, out, engine, opts)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow changes until interrupted")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable ANSI colors")
	return cmd
}

var _ board.Source = (*reconcile.Engine)(nil)
