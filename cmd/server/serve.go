package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/api"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/api/handlers"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lifecycle manager and its HTTP API (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()
	logger := logging.Component("main")

	a, err := buildApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.hub.Run(ctx)

	if err := a.servers.Watch(ctx); err != nil {
		logger.Warn("servers.yaml will not be reloaded", "error", err)
	}

	schedule, err := config.ParseSchedule(cfg.Jobs.PruneSchedule)
	if err != nil {
		return fmt.Errorf("invalid prune schedule: %w", err)
	}
	janitorDone := jobs.NewJanitor(a.store, schedule, cfg.Jobs.Retention).Start(ctx)

	var samples handlers.MetricsSource
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(a.lifecycle, a.processes, cfg.Metrics.Interval)
		collector.Start()
		defer collector.Stop()
		samples = collector
	}

	router := api.SetupRouter(cfg, api.Dependencies{
		Lifecycle: a.lifecycle,
		Servers:   a.servers,
		Console:   a.console,
		Streamer:  a.hub,
		Metrics:   samples,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr, "servers", len(a.servers.GetAll()), "job_store", cfg.Jobs.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server forced to shutdown", "error", err)
	}
	// In-flight jobs are cancelled and recorded as failed, pending ones included,
	// as long as they finish within the shutdown budget.
	if err := a.lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Warn("lifecycle jobs did not finish before the deadline", "error", err)
	}
	stop()
	<-janitorDone

	logger.Info("server exited")
	return nil
}
