package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTriggerRunsOnce(t *testing.T) {
	var calls int32
	s, err := New("@every 1m", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.trigger()
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestTriggerSkipsWhileRunning(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	s, err := New("@every 1m", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go s.trigger()
	<-started

	// A second trigger while the first run is still in flight must be
	// skipped, not queued.
	s.trigger()
	close(release)

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1 (second trigger should have been skipped)", got)
	}
}

func TestInvalidCronExpression(t *testing.T) {
	if _, err := New("not a cron expr", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected an error for an invalid cron expression")
	}
}
