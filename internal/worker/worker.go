// Package worker executes one task at a time against the container
// engine, streaming its output with a name-prefixed line format and
// translating its exit status into a pipeline.Task result.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/swarmguard/runr/internal/config"
	"github.com/swarmguard/runr/internal/containercmd"
	"github.com/swarmguard/runr/internal/pipeline"
	"github.com/swarmguard/runr/internal/runrerr"
	"github.com/swarmguard/runr/internal/taskset"
	"github.com/swarmguard/runr/internal/telemetry"
)

// Input is one unit of work sent to a worker: the id and resolved task to
// run.
type Input struct {
	ID   taskset.TaskID
	Task pipeline.Task
}

// Output is the result a worker reports back to the run controller.
type Output struct {
	ID  taskset.TaskID
	Err error // nil on success
}

// Worker pulls work from a shared channel and executes it against a
// container engine, reporting completions on a shared results channel. A
// worker keeps the name of the container it is currently attached to (if
// any) so the run controller can kill it during an abort.
type Worker struct {
	Index   int
	Engine  containercmd.Starter
	Config  config.RunConfig
	Metrics telemetry.Metrics

	attached atomic.Value // holds string; "" means nothing attached
	stdout   io.Writer    // callers share one mutex-guarded writer across workers, see NewSyncWriter
}

// New builds a Worker writing task output to stdout.
func New(index int, engine containercmd.Starter, cfg config.RunConfig, m telemetry.Metrics, stdout io.Writer) *Worker {
	w := &Worker{Index: index, Engine: engine, Config: cfg, Metrics: m, stdout: stdout}
	w.attached.Store("")
	return w
}

// AttachedContainer returns the name of the container this worker is
// currently running, or "" if it is idle.
func (w *Worker) AttachedContainer() string {
	return w.attached.Load().(string)
}

// KillAttached kills this worker's currently attached container, if any,
// and waits for the kill subprocess to finish. Called by the run
// controller during Cleanup's ordered shutdown.
func (w *Worker) KillAttached(ctx context.Context) error {
	name := w.AttachedContainer()
	if name == "" {
		return nil
	}
	pr, pw := io.Pipe()
	cmd, err := w.Engine.Start(ctx, containercmd.Command{Kind: containercmd.Kill, ContainerName: name}, pw)
	if err != nil {
		pw.Close()
		return runrerr.NewIO(err)
	}
	go w.streamLines(pr, func(line string) { fmt.Fprintln(w.stdout, line) })
	err = cmd.Wait()
	pw.Close()
	w.Metrics.ContainerKill.Add(ctx, 1)
	if err != nil {
		return runrerr.NewIO(err)
	}
	return nil
}

// Run drains in, executing each task in turn, until in is closed or ctx
// is done. A single shared receive end among many goroutines is safe in
// Go without an explicit mutex, so the run controller may fan many
// Workers out over one channel directly.
func (w *Worker) Run(ctx context.Context, in <-chan Input, out chan<- Output) {
	for {
		select {
		case input, ok := <-in:
			if !ok {
				return
			}
			err := w.execute(ctx, input.ID, input.Task)
			out <- Output{ID: input.ID, Err: err}
			if err != nil {
				// A worker never silently drops a task, but it also
				// never keeps pulling from the shared channel after a
				// failure: the run is aborting, and any task still
				// queued behind this one must wait for Cleanup to
				// close the channel rather than be started.
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) execute(ctx context.Context, id taskset.TaskID, task pipeline.Task) error {
	tr := otel.Tracer("runr")
	ctx, span := tr.Start(ctx, "worker.execute", otelSpanAttrs(task)...)
	defer span.End()

	start := time.Now()
	var err error
	if task.Kind == pipeline.PullImage {
		err = w.runPull(ctx, id, task)
	} else {
		err = w.runCommandLine(ctx, id, task)
	}
	w.Metrics.TaskDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		w.Metrics.TaskFailures.Add(ctx, 1)
	}
	return err
}

func (w *Worker) runPull(ctx context.Context, id taskset.TaskID, task pipeline.Task) error {
	pr, pw := io.Pipe()
	cmd, err := w.Engine.Start(ctx, containercmd.Command{Kind: containercmd.Pull, Image: task.Image}, pw)
	if err != nil {
		pw.Close()
		return runrerr.NewIO(err)
	}
	go w.streamLines(pr, func(line string) { fmt.Fprintln(w.stdout, line) })
	status := cmd.Wait()
	pw.Close()
	return interpretExit(id, task.String(), status)
}

func (w *Worker) runCommandLine(ctx context.Context, id taskset.TaskID, task pipeline.Task) error {
	name := w.Config.ContainerName(task.Name)
	// Mark this worker attached before spawning: the controller's
	// Cleanup reads this cell concurrently with task execution, and the
	// container must be killable for the whole lifetime of the
	// subprocess, not just after Start returns.
	w.attached.Store(name)
	pr, pw := io.Pipe()
	cmd, err := w.Engine.Start(ctx, containercmd.Command{
		Kind:          containercmd.Run,
		Commands:      task.Commands,
		Image:         task.Image,
		ContainerName: name,
		RepoPath:      w.Config.RepoPath,
		Cleanup:       w.Config.Cleanup,
	}, pw)
	if err != nil {
		pw.Close()
		w.attached.Store("")
		return runrerr.NewIO(err)
	}

	width := w.Config.TaskNameWidth
	go w.streamLines(pr, func(line string) { fmt.Fprintf(w.stdout, "%-*s| %s\n", width, task.Name, line) })
	status := cmd.Wait()
	pw.Close()
	w.attached.Store("")
	return interpretExit(id, task.Name, status)
}

func (w *Worker) streamLines(r io.Reader, emit func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		emit(scanner.Text())
	}
}

// interpretExit maps a finished subprocess's wait error into the task's
// result, matching the original exit-status table: 0 -> nil, nonzero ->
// FailedTask naming the code, no code (killed) -> FailedTask naming
// "terminated unexpectedly", any other I/O failure -> IO.
func interpretExit(id taskset.TaskID, name string, waitErr error) error {
	if waitErr == nil {
		return nil
	}
	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return runrerr.NewIO(waitErr)
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return runrerr.NewFailedTask(id, fmt.Sprintf("%s exited with error code %d", name, code))
	}
	return runrerr.NewFailedTask(id, fmt.Sprintf("%s terminated unexpectedly", name))
}
