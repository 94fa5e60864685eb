// ABOUTME: serve subcommand running the HTTP API and the reminder scheduler
// ABOUTME: Both run until SIGINT or SIGTERM and shut down together
package cli

import (
	"os/signal"
	"syscall"

	"github.com/harperreed/dealboard/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(app *App) *cobra.Command {
	var addr string
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the due-date reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := app.services(ctx)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.cfg.Server.Addr
			}

			server := web.NewServer(svc.WebDeps())
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx, addr)
			})
			if !noScheduler {
				g.Go(func() error {
					return svc.Scheduler.Run(gctx)
				})
			}

			app.logger.Info("dealboard started",
				zap.String("addr", addr),
				zap.Bool("scheduler", !noScheduler))
			if err := g.Wait(); err != nil {
				return err
			}
			app.logger.Info("dealboard stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the reminder scheduler")
	return cmd
}
