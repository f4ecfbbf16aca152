// Package containercmd builds and spawns the pull/run/kill subprocesses
// that drive a container engine (podman by default, any CLI with a
// compatible pull/run/kill surface works). Spawns are gated by a shared
// rate limiter and circuit breaker so a struggling daemon fails fast
// instead of stacking up timed-out workers; neither primitive ever
// touches a task's own exit code.
package containercmd

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/swarmguard/runr/internal/resilience"
)

// Command is the sum of the three operations the engine supports.
type Command struct {
	Kind          CommandKind
	Commands      string // Run only: script piped to the container's stdin
	Image         string // Run, Pull
	ContainerName string // Run, Kill
	RepoPath      string // Run only: bind-mounted as /__repo
	Cleanup       bool   // Run only: pass --rm
}

type CommandKind int

const (
	Run CommandKind = iota
	Pull
	Kill
)

// Starter spawns the subprocess for a Command and returns it already
// running. Engine is the production implementation; tests substitute a
// fake that runs real /bin/sh -c scripts instead of a container engine.
type Starter interface {
	Start(ctx context.Context, cmd Command, output io.Writer) (*exec.Cmd, error)
}

// Engine spawns container-engine subprocesses for one binary (e.g.
// podman), guarding every spawn attempt with a rate limiter and circuit
// breaker.
type Engine struct {
	Binary  string
	Limiter *resilience.RateLimiter
	Breaker *resilience.CircuitBreaker
}

// New builds an Engine for the named binary with the module's default
// spawn-guard settings: at most 10 spawns/second (burst 20), and a
// breaker that opens once at least 5 spawn attempts were recorded in the
// last 20 seconds and their failure rate reaches an adaptive threshold
// that starts at one half.
func New(binary string) *Engine {
	return &Engine{
		Binary:  binary,
		Limiter: resilience.NewRateLimiter(20, 10, 0, 0),
		Breaker: resilience.NewCircuitBreakerAdaptive(20_000_000_000, 4, 5, 0.5, 5_000_000_000, 2),
	}
}

// Start builds the subprocess for cmd, writing both stdout and stderr to
// output, and starts it running. The caller must Wait (or Kill then Wait)
// the returned *exec.Cmd.
func (e *Engine) Start(ctx context.Context, cmd Command, output io.Writer) (*exec.Cmd, error) {
	if !e.Breaker.Allow() {
		return nil, fmt.Errorf("container engine circuit open, refusing to spawn %s", e.Binary)
	}
	if !e.Limiter.Allow() {
		e.Breaker.RecordResult(false)
		return nil, fmt.Errorf("container engine spawn rate exceeded for %s", e.Binary)
	}

	c, writeCommands, err := e.build(cmd, output)
	if err != nil {
		e.Breaker.RecordResult(false)
		return nil, err
	}

	// StdinPipe must be obtained before Start: exec.Cmd refuses to open
	// it once the process is already running.
	var stdin io.WriteCloser
	if writeCommands != "" {
		stdin, err = c.StdinPipe()
		if err != nil {
			e.Breaker.RecordResult(false)
			return nil, fmt.Errorf("open stdin for %s: %w", e.Binary, err)
		}
	}

	if err := c.Start(); err != nil {
		e.Breaker.RecordResult(false)
		return nil, fmt.Errorf("spawn %s: %w", e.Binary, err)
	}
	e.Breaker.RecordResult(true)

	if stdin != nil {
		go func() {
			defer stdin.Close()
			io.WriteString(stdin, writeCommands)
		}()
	}
	return c, nil
}

func (e *Engine) build(cmd Command, output io.Writer) (*exec.Cmd, string, error) {
	switch cmd.Kind {
	case Pull:
		c := exec.Command(e.Binary, "pull", cmd.Image)
		c.Stdout, c.Stderr = output, output
		return c, "", nil
	case Kill:
		c := exec.Command(e.Binary, "kill", cmd.ContainerName)
		c.Stdout, c.Stderr = output, output
		return c, "", nil
	case Run:
		runArgs := []string{"run", "--interactive", "--userns", "keep-id"}
		if cmd.Cleanup {
			runArgs = []string{"run", "--rm", "--interactive", "--userns", "keep-id"}
		}
		const workdir = "/__repo"
		volume := fmt.Sprintf("%s:%s", cmd.RepoPath, workdir)
		args := append(runArgs, "--name", cmd.ContainerName, "--volume", volume, "--workdir", workdir, cmd.Image, "/bin/bash")
		c := exec.Command(e.Binary, args...)
		c.Stdout, c.Stderr = output, output
		return c, cmd.Commands, nil
	default:
		return nil, "", fmt.Errorf("unknown command kind %d", cmd.Kind)
	}
}
