package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pevans/newsharvest/api"
	"github.com/pevans/newsharvest/config"
	"github.com/pevans/newsharvest/logger"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve exposes run triggering, run status and the stored items over HTTP.
Runs started over HTTP continue in the background; on SIGINT or SIGTERM an
in-flight run is cancelled before it writes anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts, func(cfg *config.Config) {
				if cmd.Flags().Changed("port") {
					cfg.Server.Port = port
				}
			})
			if err != nil {
				return err
			}
			defer a.close()

			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			if !opts.debug {
				gin.SetMode(gin.ReleaseMode)
			}

			runCtx, cancelRuns := context.WithCancel(context.Background())
			defer cancelRuns()

			apiConfig := api.Config{
				Runs:            runner,
				Store:           a.store,
				Ledger:          a.ledger,
				Metrics:         a.metrics,
				Log:             a.log,
				RunContext:      runCtx,
				DefaultMaxPages: a.cfg.Source.MaxPages,
			}
			if j := a.openJournal(); j != nil {
				apiConfig.History = j
			}
			server := api.NewServer(apiConfig)

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:           server.SetupRouter(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				a.log.Info("HTTP server listening",
					logger.String("addr", srv.Addr),
					logger.String("start_url", a.cfg.Source.StartURL),
				)
				errChan <- srv.ListenAndServe()
			}()

			select {
			case sig := <-sigChan:
				a.log.Info("shutting down", logger.String("signal", sig.String()))
			case err := <-errChan:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			}

			cancelRuns()

			timeout := a.cfg.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				a.log.Warn("HTTP shutdown incomplete", logger.Error(err))
			}

			done := make(chan struct{})
			go func() {
				runner.Wait()
				close(done)
			}()
			select {
			case <-done:
				a.log.Info("server stopped")
			case <-ctx.Done():
				a.log.Warn("shutdown timeout exceeded, forcing exit")
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides PORT and server.port)")

	return cmd
}
