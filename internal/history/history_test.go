package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndList(t *testing.T) {
	s := openTemp(t)
	now := time.Now()
	summaries := []RunSummary{
		{RunID: "run-1", Repo: "demo", Branch: "main", StartedAt: now, FinishedAt: now, Succeeded: true, TasksTotal: 3},
		{RunID: "run-2", Repo: "demo", Branch: "main", StartedAt: now, FinishedAt: now, Succeeded: false, FailReason: "task build failed", TasksTotal: 3},
	}
	for _, s2 := range summaries {
		if err := s.Put(s2); err != nil {
			t.Fatalf("Put(%s): %v", s2.RunID, err)
		}
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d summaries, want 2", len(got))
	}
	byID := map[string]RunSummary{}
	for _, g := range got {
		byID[g.RunID] = g
	}
	if !byID["run-1"].Succeeded {
		t.Fatalf("run-1 should have Succeeded=true")
	}
	if byID["run-2"].FailReason != "task build failed" {
		t.Fatalf("run-2 FailReason = %q", byID["run-2"].FailReason)
	}
}

func TestPutOverwritesSameRunID(t *testing.T) {
	s := openTemp(t)
	now := time.Now()
	if err := s.Put(RunSummary{RunID: "run-1", Succeeded: false, StartedAt: now}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(RunSummary{RunID: "run-1", Succeeded: true, StartedAt: now}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one record after overwrite, got %d", len(got))
	}
	if !got[0].Succeeded {
		t.Fatalf("expected the later Put to win")
	}
}
