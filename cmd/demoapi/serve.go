package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/autonops/infraiq-demo/internal/config"
	"github.com/autonops/infraiq-demo/internal/leads"
	"github.com/autonops/infraiq-demo/internal/notify"
	"github.com/autonops/infraiq-demo/internal/orchestrator"
	"github.com/autonops/infraiq-demo/internal/ports"
	"github.com/autonops/infraiq-demo/internal/server"
	"github.com/autonops/infraiq-demo/internal/session"
	"github.com/autonops/infraiq-demo/internal/telemetry"
	"github.com/autonops/infraiq-demo/internal/worker"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session API server",
		Long:  "Starts the HTTP API, the worker supervisor, and the cleanup sweep, then serves until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			level := telemetry.ParseLevel(cfg.Log.Level)
			if logLevel != "" {
				level = telemetry.ParseLevel(logLevel)
			}
			logger := telemetry.NewLogger(os.Stderr, level)
			metrics := telemetry.NewMetrics()

			registry := session.NewRegistry(cfg.Session.MaxConcurrent)
			allocator := ports.New(cfg.Session.BasePort, cfg.Session.MaxConcurrent)
			driver := worker.NewDockerDriver(worker.DockerOptions{
				Image:        cfg.Worker.Image,
				MemoryLimit:  cfg.Worker.MemoryLimit,
				CPULimit:     cfg.Worker.CPULimit,
				StartTimeout: cfg.Worker.StartTimeout,
				Logger:       logger,
			})

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var leadStore leads.Store
			if cfg.Leads.PostgresDSN != "" {
				pg, err := leads.NewPostgresStore(ctx, cfg.Leads.PostgresDSN)
				if err != nil {
					return fmt.Errorf("connecting lead store: %w", err)
				}
				defer pg.Close()
				leadStore = pg
				logger.Info("lead store", "backend", "postgres")
			} else {
				leadStore = leads.NewFileStore(cfg.Leads.Path)
				logger.Info("lead store", "backend", "file", "path", cfg.Leads.Path)
			}

			orch := orchestrator.New(orchestrator.Options{
				Registry:        registry,
				Ports:           allocator,
				Driver:          driver,
				Leads:           leadStore,
				Notifier:        notify.NewSlack(cfg.Slack.WebhookURL, logger),
				Metrics:         metrics,
				Logger:          logger,
				SessionDuration: cfg.Session.Duration,
				StopTimeout:     cfg.Worker.StopTimeout,
			})

			supervisor := orchestrator.NewSupervisor(orch, orchestrator.SupervisorOptions{
				Interval:    cfg.Sweep.Interval,
				StopTimeout: cfg.Worker.StopTimeout,
				Logger:      logger,
			})
			if err := supervisor.Start(); err != nil {
				return err
			}
			defer supervisor.Stop()

			srv := server.NewServer(orch, leadStore,
				server.WithAdminKey(cfg.Admin.APIKey),
				server.WithLogger(logger),
				server.WithMetrics(metrics),
			)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe(cfg.Server.Addr)
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}
