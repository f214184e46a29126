package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budgetlink/internal/interfaces/scheduler"
	"budgetlink/internal/shared/config"
	"budgetlink/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  getEnvironment(),
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
			SampleRatio:  cfg.Telemetry.SampleRatio,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		})
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				log.Printf("Error shutting down telemetry: %v", err)
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Worker pool (if enabled)
	var pool *scheduler.WorkerPool
	if cfg.Worker.Enabled {
		pool = deps.NewWorkerPool(cfg)
		pool.Start()
	} else {
		log.Println("Worker pool is disabled")
	}

	// Scheduler (if enabled)
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = deps.NewScheduler(cfg)
		if err != nil {
			if pool != nil {
				pool.ShutdownWithTimeout(shutdownTimeout)
			}
			return err
		}
		sched.Start()
		log.Printf("Scheduler started with times: %v, next run at %s",
			cfg.Scheduler.ScheduleTimes, sched.GetNextScheduledTime().Format(time.RFC3339))
	} else {
		log.Println("Scheduler is disabled")
	}

	handler := SetupRoutes(deps, cfg)
	srv, redirectSrv, serveErr := StartServers(NewServerConfigFromConfig(handler, cfg))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("Received %s", sig)
	case err = <-serveErr:
		log.Printf("Server failed: %v", err)
	}

	GracefulShutdown(srv, redirectSrv, sched, pool, shutdownTimeout)
	return err
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
