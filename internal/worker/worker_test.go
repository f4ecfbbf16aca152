package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/swarmguard/runr/internal/config"
	"github.com/swarmguard/runr/internal/containercmd"
	"github.com/swarmguard/runr/internal/pipeline"
	"github.com/swarmguard/runr/internal/runrerr"
	"github.com/swarmguard/runr/internal/taskset"
	"github.com/swarmguard/runr/internal/telemetry"
)

// shellEngine runs real /bin/sh -c scripts instead of spawning a
// container engine, so worker tests are fast and need no container
// runtime.
type shellEngine struct{}

func (shellEngine) Start(_ context.Context, cmd containercmd.Command, output io.Writer) (*exec.Cmd, error) {
	script := cmd.Commands
	if cmd.Kind != containercmd.Run {
		script = "true"
	}
	c := exec.Command("/bin/sh", "-c", script)
	c.Stdout, c.Stderr = output, output
	if err := c.Start(); err != nil {
		return nil, err
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

func TestRunCommandLineSuccess(t *testing.T) {
	var buf bytes.Buffer
	w := New(0, shellEngine{}, config.RunConfig{TaskNameWidth: 6}, noopMetrics(), &buf)

	task := pipeline.NewCommandLine("build", "echo hello", "img", taskset.TaskSet{})
	err := w.execute(context.Background(), 1, task)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected streamed output to contain hello, got %q", buf.String())
	}
}

func TestRunCommandLineFailure(t *testing.T) {
	var buf bytes.Buffer
	w := New(0, shellEngine{}, config.RunConfig{TaskNameWidth: 6}, noopMetrics(), &buf)

	task := pipeline.NewCommandLine("build", "exit 3", "img", taskset.TaskSet{})
	err := w.execute(context.Background(), 1, task)
	if err == nil {
		t.Fatalf("expected a failure")
	}
	kind, ok := runrerr.KindOf(err)
	if !ok || kind != runrerr.FailedTask {
		t.Fatalf("expected FailedTask, got %v", err)
	}
	if !strings.Contains(err.Error(), "exited with error code 3") {
		t.Fatalf("expected exit code in message, got %q", err.Error())
	}
}

func TestRunPullImage(t *testing.T) {
	var buf bytes.Buffer
	w := New(0, shellEngine{}, config.RunConfig{}, noopMetrics(), &buf)

	task := pipeline.NewPullImage("debian:bookworm")
	err := w.execute(context.Background(), 0, task)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestOutputPrefixedWithTaskName(t *testing.T) {
	var buf bytes.Buffer
	w := New(0, shellEngine{}, config.RunConfig{TaskNameWidth: 10}, noopMetrics(), &buf)

	task := pipeline.NewCommandLine("step-1", "echo line-one", "img", taskset.TaskSet{})
	if err := w.execute(context.Background(), 1, task); err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := fmt.Sprintf("%-10s| line-one", "step-1")
	if !strings.Contains(buf.String(), want) {
		t.Fatalf("output = %q, want substring %q", buf.String(), want)
	}
}
