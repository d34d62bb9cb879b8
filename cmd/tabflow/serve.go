package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabflow/tabflow/pkg/config"
	"github.com/tabflow/tabflow/pkg/firehose"
	"github.com/tabflow/tabflow/pkg/server"
	"github.com/tabflow/tabflow/pkg/telemetry"
	"github.com/tabflow/tabflow/pkg/transform"
)

var (
	servePort       int
	serveHost       string
	serveSkipVerify bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP invocation endpoint",
	Long: `Start an HTTP server exposing the transform-invocation contract.

POST an invocation event document to /transform and receive the assembled
response: one status-tagged record per input record, in input order.

The destination bucket (DATA_BUCKET_NAME) must be configured; startup fails
without it, and the bucket is verified to be reachable unless --skip-verify
is given.

Examples:
  tabflow serve                    # Start on default port (8080)
  tabflow serve --port 3000        # Start on custom port
  tabflow serve --skip-verify      # Don't check the destination bucket`,
	RunE: runServe,
}

func init() {
	cfg := config.Global().Get()

	serveCmd.Flags().IntVarP(&servePort, "port", "p", cfg.Server.Port, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", cfg.Server.Host, "Host to bind to")
	serveCmd.Flags().BoolVar(&serveSkipVerify, "skip-verify", false, "Skip the destination bucket reachability check")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Deployment precondition: a batch invocation without a destination is
	// a configuration error, surfaced before any record is processed.
	if err := cfg.Validate(); err != nil {
		return err
	}

	s, err := buildSchema(cfg)
	if err != nil {
		return err
	}

	tr, err := transform.New(s, logger)
	if err != nil {
		return err
	}

	if !serveSkipVerify {
		client, err := newDestinationClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if err := client.Verify(cmd.Context()); err != nil {
			return err
		}
		logger.Info("msg", "Destination bucket verified",
			"component", "serve",
			"bucket", client.Bucket())
	}

	if cfg.Telemetry.Enabled {
		otlpCfg := telemetry.DefaultOTLPConfig("tabflow")
		otlpCfg.Endpoint = cfg.Telemetry.Endpoint
		otlpCfg.ServiceVersion = version

		exporter := telemetry.NewOTLPExporter(otlpCfg)
		shutdown, err := exporter.Init(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			shutdown(ctx)
		}()
	}

	handler := firehose.NewHandler(tr, cfg.Storage.Bucket, logger,
		firehose.WithWorkers(cfg.Transform.Workers))

	srv := server.NewServer(handler, logger, version, cfg.Server.MaxBodyBytes)

	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	logger.Info("msg", "Invocation endpoint listening",
		"component", "serve",
		"addr", addr,
		"bucket", cfg.Storage.Bucket,
		"workers", cfg.Transform.Workers)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("msg", "Shutting down",
			"component", "serve",
			"signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
