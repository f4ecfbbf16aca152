// Command runr executes a declaratively described, dependency-ordered
// pipeline of shell tasks inside isolated containers.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/swarmguard/runr/internal/config"
	"github.com/swarmguard/runr/internal/engine"
	"github.com/swarmguard/runr/internal/history"
	"github.com/swarmguard/runr/internal/notify"
	"github.com/swarmguard/runr/internal/schedule"
	"github.com/swarmguard/runr/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := telemetry.InitLogging("runr")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := telemetry.InitTracer(ctx, "runr")
	defer telemetry.Flush(context.Background(), shutdownTracer)
	shutdownMetrics, metrics := telemetry.InitMetrics(ctx, "runr")
	defer telemetry.Flush(context.Background(), shutdownMetrics)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		logger.Error("failed to open history database", "error", err)
		return 1
	}
	defer store.Close()

	pub, err := notify.Connect(cfg.NatsURL, notifySubject(cfg))
	if err != nil {
		logger.Warn("failed to connect to nats, continuing without lifecycle events", "error", err)
		pub = nil
	}
	defer pub.Close()

	runOnce := func(ctx context.Context) error {
		return engine.RunPipeline(ctx, cfg, store, pub, metrics)
	}

	if cfg.CronSchedule == "" {
		if err := runOnce(ctx); err != nil {
			logger.Error("pipeline run failed", "error", err)
			return 1
		}
		return 0
	}

	sched, err := schedule.New(cfg.CronSchedule, runOnce)
	if err != nil {
		logger.Error("invalid CRON_SCHEDULE", "error", err)
		return 1
	}
	sched.Start()
	logger.Info("scheduler started", "cron", cfg.CronSchedule)
	<-ctx.Done()
	sched.Stop()
	return 0
}

func notifySubject(cfg *config.Config) string {
	return "runr." + cfg.RepoName + "." + cfg.RepoBranch + ".events"
}
