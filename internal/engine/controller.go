// Package engine implements the run controller: the main scheduling loop
// that feeds runnable tasks to a worker pool and the ordered shutdown
// protocol that follows a run, successful or not.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"

	"github.com/swarmguard/runr/internal/containercmd"
	"github.com/swarmguard/runr/internal/config"
	"github.com/swarmguard/runr/internal/pipeline"
	"github.com/swarmguard/runr/internal/status"
	"github.com/swarmguard/runr/internal/taskset"
	"github.com/swarmguard/runr/internal/telemetry"
	"github.com/swarmguard/runr/internal/worker"
)

// Controller owns the live state of one pipeline run: the status
// tracker, the worker pool, and the channels connecting them.
type Controller struct {
	status  *status.Status
	tasks   map[taskset.TaskID]pipeline.Task
	workers []*worker.Worker
	in      chan worker.Input
	out     chan worker.Output
	wg      sync.WaitGroup
}

// New builds a Controller with nParallel workers, all sharing one input
// channel directly (no explicit mutex needed: a plain Go channel receive
// is already safe for concurrent consumers) and one buffered result
// channel sized to never block a worker's send.
func New(ctx context.Context, tasks map[taskset.TaskID]pipeline.Task, nParallel int, eng containercmd.Starter, cfg config.RunConfig, metrics telemetry.Metrics, stdout io.Writer) *Controller {
	deps := make([]status.Dep, 0, len(tasks))
	for id, t := range tasks {
		deps = append(deps, status.Dep{ID: id, Depends: t.DependsOn()})
	}

	c := &Controller{
		status: status.New(deps),
		tasks:  tasks,
		in:     make(chan worker.Input, len(tasks)+1),
		out:    make(chan worker.Output, len(tasks)+1),
	}

	sharedOut := worker.NewSyncWriter(stdout)
	c.workers = make([]*worker.Worker, nParallel)
	for i := 0; i < nParallel; i++ {
		w := worker.New(i, eng, cfg, metrics, sharedOut)
		c.workers[i] = w
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			w.Run(ctx, c.in, c.out)
		}()
	}
	return c
}

// submitRunnable sends every currently runnable task to the worker pool.
func (c *Controller) submitRunnable() error {
	for {
		id, ok := c.status.NextRunnable()
		if !ok {
			return nil
		}
		task, ok := c.tasks[id]
		if !ok {
			return fmt.Errorf("inconsistent run status: unknown task id %s", id)
		}
		delete(c.tasks, id)
		c.in <- worker.Input{ID: id, Task: task}
	}
}

// Start runs the pipeline to completion or to its first task failure,
// whichever comes first. It returns the id and error of the task that
// failed with failed=true, or failed=false if every task completed
// successfully. A cancelled ctx also returns failed=true, with id 0 and
// ctx.Err().
func (c *Controller) Start(ctx context.Context) (failedID taskset.TaskID, failErr error, failed bool) {
	tr := otel.Tracer("runr")
	ctx, span := tr.Start(ctx, "engine.start")
	defer span.End()

	for !c.status.IsCompleted() {
		if err := c.submitRunnable(); err != nil {
			return 0, err, true
		}
		select {
		case o := <-c.out:
			c.status.Complete(o.ID)
			if o.Err != nil {
				slog.Error("task failed, killing containers and exiting", "task_id", o.ID, "error", o.Err)
				return o.ID, o.Err, true
			}
		case <-ctx.Done():
			return 0, ctx.Err(), true
		}
	}
	return 0, nil, false
}

// Cleanup performs the ordered shutdown protocol: stop accepting new
// work, kill every worker's attached container, wait for the kills, then
// join every worker goroutine. It returns the number of containers
// killed.
func (c *Controller) Cleanup(ctx context.Context) int {
	tr := otel.Tracer("runr")
	ctx, span := tr.Start(ctx, "engine.cleanup")
	defer span.End()

	close(c.in)

	var killWg sync.WaitGroup
	var killed int32
	for _, w := range c.workers {
		if w.AttachedContainer() == "" {
			continue
		}
		w := w
		killWg.Add(1)
		go func() {
			defer killWg.Done()
			if err := w.KillAttached(ctx); err != nil {
				slog.Warn("failed to kill attached container", "error", err)
				return
			}
			atomic.AddInt32(&killed, 1)
		}()
	}
	killWg.Wait()

	c.wg.Wait()

	// Drain any results produced by tasks that were still running when
	// the first failure was observed; nothing reads them after this.
	for {
		select {
		case <-c.out:
		default:
			return int(killed)
		}
	}
}
