package engine

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/swarmguard/runr/internal/config"
	"github.com/swarmguard/runr/internal/containercmd"
	"github.com/swarmguard/runr/internal/pipeline"
	"github.com/swarmguard/runr/internal/runrerr"
	"github.com/swarmguard/runr/internal/taskset"
	"github.com/swarmguard/runr/internal/telemetry"
)

// shellEngine runs real /bin/sh -c scripts instead of spawning a
// container engine, the same substitution worker's own tests use. Unlike
// the bare worker-package fake, it tracks spawned Run processes by
// container name so a Kill command genuinely terminates the matching
// process, exercising the same abort-and-reap path a real container
// engine's kill would.
type shellEngine struct {
	mu      sync.Mutex
	running map[string]*exec.Cmd
}

func (e *shellEngine) Start(_ context.Context, cmd containercmd.Command, output io.Writer) (*exec.Cmd, error) {
	if cmd.Kind == containercmd.Kill {
		e.mu.Lock()
		target := e.running[cmd.ContainerName]
		e.mu.Unlock()
		if target != nil {
			target.Process.Kill()
		}
		c := exec.Command("/bin/sh", "-c", "true")
		if err := c.Start(); err != nil {
			return nil, err
		}
		return c, nil
	}

	script := cmd.Commands
	if cmd.Kind != containercmd.Run {
		script = "true"
	}
	c := exec.Command("/bin/sh", "-c", script)
	c.Stdout, c.Stderr = output, output
	if err := c.Start(); err != nil {
		return nil, err
	}
	if cmd.Kind == containercmd.Run {
		e.mu.Lock()
		if e.running == nil {
			e.running = make(map[string]*exec.Cmd)
		}
		e.running[cmd.ContainerName] = c
		e.mu.Unlock()
	}
	return c, nil
}

func noopMetrics() telemetry.Metrics {
	meter := noop.NewMeterProvider().Meter("test")
	dur, _ := meter.Float64Histogram("d")
	fail, _ := meter.Int64Counter("f")
	kill, _ := meter.Int64Counter("k")
	return telemetry.Metrics{TaskDuration: dur, TaskFailures: fail, ContainerKill: kill}
}

func TestControllerRunsDependencyOrderedPipeline(t *testing.T) {
	tasks := map[taskset.TaskID]pipeline.Task{
		0: pipeline.NewPullImage("img"),
		1: pipeline.NewCommandLine("step-1", "echo one", "img", taskset.Of(0)),
		2: pipeline.NewCommandLine("step-2", "echo two", "img", taskset.Of(1)),
	}
	var buf bytes.Buffer
	ctx := context.Background()
	ctrl := New(ctx, tasks, 2, &shellEngine{}, config.RunConfig{TaskNameWidth: 6}, noopMetrics(), &buf)

	_, err, failed := ctrl.Start(ctx)
	if failed {
		t.Fatalf("expected a successful run, got err=%v", err)
	}
	killed := ctrl.Cleanup(ctx)
	if killed != 0 {
		t.Fatalf("expected no containers to need killing on a clean run, got %d", killed)
	}
	out := buf.String()
	if !strings.Contains(out, "one") || !strings.Contains(out, "two") {
		t.Fatalf("expected both tasks' output, got %q", out)
	}
}

func TestControllerStopsAtFirstFailure(t *testing.T) {
	// Mirrors spec scenario S2: "bad" fails quickly while "slow" is still
	// mid-container, so Cleanup must kill at least that one container.
	tasks := map[taskset.TaskID]pipeline.Task{
		0: pipeline.NewCommandLine("bad", "sleep 0.2; exit 7", "img", taskset.TaskSet{}),
		1: pipeline.NewCommandLine("slow", "sleep 5; echo done", "img", taskset.TaskSet{}),
	}
	var buf bytes.Buffer
	ctx := context.Background()
	ctrl := New(ctx, tasks, 2, &shellEngine{}, config.RunConfig{TaskNameWidth: 6}, noopMetrics(), &buf)

	_, err, failed := ctrl.Start(ctx)
	if !failed {
		t.Fatalf("expected the run to fail")
	}
	if err == nil {
		t.Fatalf("expected a non-nil failure error")
	}
	if kind, ok := runrerr.KindOf(err); !ok || kind != runrerr.FailedTask {
		t.Fatalf("expected FailedTask, got %v", err)
	}
	killed := ctrl.Cleanup(ctx)
	if killed < 1 {
		t.Fatalf("expected Cleanup to kill the still-running container, got killed=%d", killed)
	}
}

func TestControllerContextCancellation(t *testing.T) {
	tasks := map[taskset.TaskID]pipeline.Task{
		0: pipeline.NewCommandLine("slow", "sleep 1", "img", taskset.TaskSet{}),
	}
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := New(ctx, tasks, 1, &shellEngine{}, config.RunConfig{TaskNameWidth: 6}, noopMetrics(), &buf)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, failed := ctrl.Start(ctx)
		if !failed {
			t.Errorf("expected Start to report failure on cancellation")
		}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Start did not return promptly after context cancellation")
	}
	ctrl.Cleanup(context.Background())
}
