package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/swarmguard/runr/internal/config"
	"github.com/swarmguard/runr/internal/containercmd"
	"github.com/swarmguard/runr/internal/history"
	"github.com/swarmguard/runr/internal/notify"
	"github.com/swarmguard/runr/internal/pipeline"
	"github.com/swarmguard/runr/internal/telemetry"
)

// RunPipeline checks out the repository, loads and validates the
// pipeline file, executes it to completion or first failure, and runs
// the ordered cleanup protocol, recording a history.RunSummary and
// publishing lifecycle events along the way. It returns an error when
// the run did not complete successfully; cmd/runr maps that to a
// nonzero process exit code.
func RunPipeline(ctx context.Context, cfg *config.Config, store *history.Store, pub *notify.Publisher, metrics telemetry.Metrics) error {
	runID := uuid.NewString()
	tr := otel.Tracer("runr")
	ctx, span := tr.Start(ctx, "engine.run_pipeline")
	defer span.End()

	started := time.Now()
	pub.Publish(ctx, notify.Event{RunID: runID, Kind: "run.started", Timestamp: started})

	summary := history.RunSummary{RunID: runID, Repo: cfg.RepoName, Branch: cfg.RepoBranch, StartedAt: started}
	finish := func(succeeded bool, reason string) error {
		summary.FinishedAt = time.Now()
		summary.Succeeded = succeeded
		summary.FailReason = reason
		if store != nil {
			if err := store.Put(summary); err != nil {
				slog.Warn("failed to persist run summary", "error", err)
			}
		}
		kind := "run.finished"
		if !succeeded {
			kind = "run.failed"
		}
		pub.Publish(ctx, notify.Event{RunID: runID, Kind: kind, Reason: reason, Timestamp: summary.FinishedAt})
		if !succeeded {
			return fmt.Errorf("pipeline run failed: %s", reason)
		}
		return nil
	}

	if err := config.CheckoutRepo(ctx, cfg); err != nil {
		return finish(false, err.Error())
	}
	defer func() {
		if err := cfg.CleanupRepo(); err != nil {
			slog.Warn("failed to remove repo checkout", "error", err)
		}
	}()

	file, err := os.Open(cfg.PipelinePath())
	if err != nil {
		return finish(false, err.Error())
	}
	defer file.Close()

	defaultImage := cfg.DefaultImage
	if defaultImage == "" {
		defaultImage = "debian:bookworm"
	}
	p, err := pipeline.ReadFrom(file, defaultImage)
	if err != nil {
		return finish(false, err.Error())
	}
	summary.TasksTotal = len(p.Tasks)

	runCfg := cfg.NewRunConfig(p.NameWidth())
	eng := containercmd.New(cfg.ContainerEngine)

	ctrl := New(ctx, p.Tasks, p.NParallel, eng, runCfg, metrics, io.Writer(os.Stdout))
	_, runErr, failed := ctrl.Start(ctx)
	killed := ctrl.Cleanup(ctx)
	slog.Info("pipeline run finished", "run_id", runID, "killed_containers", killed, "failed", failed)

	if failed {
		reason := "incomplete run"
		if runErr != nil {
			reason = runErr.Error()
		}
		return finish(false, reason)
	}
	return finish(true, "")
}
