// Package status tracks which tasks of a run are pending, in progress, or
// completed, and decides which pending task (if any) is runnable next.
package status

import (
	"fmt"
	"strings"

	"github.com/swarmguard/runr/internal/taskset"
)

// Dep pairs a task id with the set of ids it depends on.
type Dep struct {
	ID      taskset.TaskID
	Depends taskset.TaskSet
}

// Status is the live run state: a pending list plus in-progress and
// completed bitmaps. It is not safe for concurrent use; the run
// controller owns it behind a single goroutine (or a mutex if shared).
type Status struct {
	pending    []Dep
	inProgress taskset.TaskSet
	completed  taskset.TaskSet
}

// New builds a Status from the dependency list of every task in a
// pipeline. None of the tasks may already be in progress or completed.
func New(deps []Dep) *Status {
	pending := make([]Dep, len(deps))
	copy(pending, deps)
	return &Status{pending: pending}
}

// Complete marks id as completed and no longer in progress.
func (s *Status) Complete(id taskset.TaskID) {
	s.inProgress = s.inProgress.Remove(id)
	s.completed = s.completed.Add(id)
}

// IsCompleted reports whether every task has been completed: nothing
// pending and nothing still in progress.
func (s *Status) IsCompleted() bool {
	return len(s.pending) == 0 && s.inProgress.IsEmpty()
}

// NextRunnable removes and returns the first pending task whose
// dependencies are all completed, marking it in progress. It reports
// ok=false if no pending task is currently runnable.
func (s *Status) NextRunnable() (id taskset.TaskID, ok bool) {
	incomplete := s.completed.Complement()
	for i, d := range s.pending {
		if d.Depends.Intersect(incomplete).IsEmpty() {
			s.pending[i] = s.pending[len(s.pending)-1]
			s.pending = s.pending[:len(s.pending)-1]
			s.inProgress = s.inProgress.Add(d.ID)
			return d.ID, true
		}
	}
	return 0, false
}

// String renders a human-readable summary of the three partitions, the
// way a live run's progress might be logged.
func (s *Status) String() string {
	var b strings.Builder
	if len(s.pending) == 0 {
		fmt.Fprintf(&b, "Unstarted tasks: []\n")
	}
	if !s.inProgress.IsEmpty() {
		fmt.Fprintf(&b, "Ongoing tasks:   %s\n", s.inProgress)
	}
	if !s.completed.IsEmpty() {
		fmt.Fprintf(&b, "Completed tasks: %s", s.completed)
	}
	if s.IsCompleted() {
		b.WriteString(" (done)")
	}
	return b.String()
}
