// Package schedule optionally re-runs the whole pipeline on a cron
// expression, for nightly or periodic CI use. When a schedule is set,
// cmd/runr runs the pipeline only on its ticks, with no immediate first
// run; without one, cmd/runr runs the pipeline once directly and this
// package is not used.
package schedule

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// RunFunc executes one full pipeline run (checkout, validate, execute,
// cleanup) and reports whether it succeeded.
type RunFunc func(ctx context.Context) error

// Scheduler triggers RunFunc on a cron expression, skipping a trigger if
// the previous run is still in flight rather than queuing it.
type Scheduler struct {
	cron *cron.Cron
	run  RunFunc

	mu      sync.Mutex
	running bool
}

// New builds a Scheduler that calls run on every expr tick. expr uses the
// standard 5-field cron syntax (seconds are not included).
func New(expr string, run RunFunc) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), run: run}
	_, err := s.cron.AddFunc(expr, s.trigger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins ticking. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for any in-flight run to finish and stops ticking.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) trigger() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Warn("scheduled pipeline run skipped: previous run still in flight")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.run(context.Background()); err != nil {
		slog.Error("scheduled pipeline run failed", "error", err)
	}
}
