package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/lvs-agent/pkg/api"
	"github.com/cuemby/lvs-agent/pkg/events"
	"github.com/cuemby/lvs-agent/pkg/health"
	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/metrics"
	"github.com/cuemby/lvs-agent/pkg/reconciler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent",
	Long: `Run the agent in the foreground.

On start every stored pool is applied with a reset. Afterwards changes made
through the HTTP API are dispatched as lifecycle events, all pools are
re-applied every resync interval and member health is probed and reported
every health interval.

Endpoints:
  http_addr   /health /ready /metrics /pools/...
  grpc_addr   grpc.health.v1.Health`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", "", "Address for the HTTP API and metrics")
	serveCmd.Flags().String("grpc-addr", "", "Address for the gRPC health service")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("http-addr") {
		cfg.HTTPAddr, _ = cmd.Flags().GetString("http-addr")
	}
	if cmd.Flags().Changed("grpc-addr") {
		cfg.GRPCAddr, _ = cmd.Flags().GetString("grpc-addr")
	}

	logger := log.WithComponent("serve")
	metrics.SetVersion(Version)

	a, err := newAgent(cfg, true)
	if err != nil {
		metrics.UpdateComponent("store", false, err.Error())
		return err
	}
	defer a.Close()
	metrics.UpdateComponent("store", true, "")

	ipvsadm := "ipvsadm"
	if cfg.Tools.Ipvsadm != "" {
		ipvsadm = cfg.Tools.Ipvsadm
	}
	if _, err := exec.LookPath(ipvsadm); err != nil {
		metrics.UpdateComponent("ipvsadm", false, err.Error())
		logger.Warn().Err(err).Msg("ipvsadm not found, agent will not be ready")
	} else {
		metrics.UpdateComponent("ipvsadm", true, "")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.converge(ctx); err != nil {
		return fmt.Errorf("initial convergence: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	dispatcher := reconciler.NewDispatcher(a.engine, a.cp, broker)
	dispatcher.Start(ctx)

	recon := reconciler.NewReconciler(a.engine, a.cp, a.cp, reconciler.Config{
		ResyncInterval: cfg.ResyncInterval,
		Health: health.Config{
			Interval: cfg.HealthInterval,
			Timeout:  cfg.ProbeTimeout,
			Retries:  cfg.HealthRetries,
		},
	})
	recon.Start(ctx)

	collector := metrics.NewTableCollector(a.engine, cfg.HealthInterval, log.WithComponent("collector"))
	collector.Start()

	httpServer := api.NewHealthServer(Version)
	api.NewPoolAPI(a.store, a.engine, broker).Register(httpServer)
	grpcServer := api.NewServer()

	errCh := make(chan error, 2)
	go func() {
		if err := httpServer.Start(cfg.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Start(cfg.GRPCAddr); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	grpcServer.SetServing(true)

	logger.Info().
		Str("http_addr", cfg.HTTPAddr).
		Str("grpc_addr", cfg.GRPCAddr).
		Str("version", Version).
		Msg("Agent running")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	grpcServer.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown failed")
	}
	grpcServer.Stop()
	collector.Stop()
	recon.Stop()
	dispatcher.Stop()

	logger.Info().Msg("Shutdown complete")
	return runErr
}
