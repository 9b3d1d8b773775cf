package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/lazyjs/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve [file.js ...]",
		Short: "Run the dispatcher and expose health and stats over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()
			go eng.platform.Run(ctx)

			if _, err := enqueueScripts(eng, args); err != nil {
				return err
			}

			srv := server.New(eng.dispatcher, logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}
