package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/image-redactor/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalOptions) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the redaction HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := g.newLogger(cfg)

			detector, cleanup, err := buildDetector(cfg, logger)
			if err != nil {
				logger.WithError(err).Error("failed to create detector")
				g.exitCode = ExitRuntimeError
				return nil
			}
			defer cleanup()

			redactor, err := buildRedactor(cfg, detector, logger)
			if err != nil {
				return err
			}

			store, err := buildStore(cfg)
			if err != nil {
				logger.WithError(err).Error("failed to create result store")
				g.exitCode = ExitRuntimeError
				return nil
			}

			srv, err := server.NewServer(
				server.WithLogger(logger),
				server.WithConfig(cfg),
				server.WithRedactor(redactor),
				server.WithStore(store),
			)
			if err != nil {
				logger.WithError(err).Error("failed to create server")
				g.exitCode = ExitRuntimeError
				return nil
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Run()
			}()

			logger.WithField("backend", cfg.Detector.Backend).Info("Server started successfully")

			select {
			case err := <-errChan:
				if err != nil {
					logger.WithError(err).Error("Server stopped")
					g.exitCode = ExitRuntimeError
				}
				return nil
			case <-sigChan:
			}

			logger.Info("Shutting down server...")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.WithError(err).Error("Shutdown failed")
				g.exitCode = ExitRuntimeError
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default: server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default: server.port)")

	return cmd
}
