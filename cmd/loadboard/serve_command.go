package main

import (
	"fmt"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"loadboard/internal/logging"
	"loadboard/internal/orderstore"
	"loadboard/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference dispatch server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCfg := *cfg
			if value := strings.TrimSpace(bind); value != "" {
				runCfg.Server.APIBind = value
			}

			logger, err := logging.NewFromConfig(&runCfg, "server.log")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := orderstore.Open(&runCfg)
			if err != nil {
				return fmt.Errorf("open order store: %w", err)
			}

			srv, err := server.New(&runCfg, store, logger)
			if err != nil {
				_ = store.Close()
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer stop()

			if err := srv.Start(runCtx); err != nil {
				_ = store.Close()
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (database %s)\n", srv.Addr(), store.Path())

			<-runCtx.Done()
			if err := srv.Close(); err != nil {
				return fmt.Errorf("close server: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides server.api_bind)")
	return cmd
}
