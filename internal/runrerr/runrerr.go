// Package runrerr defines the error taxonomy shared by the pipeline
// loader, the scheduler, and the run controller.
package runrerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/swarmguard/runr/internal/taskset"
)

// Kind identifies which member of the error taxonomy an Error is.
type Kind int

const (
	// DependencyCycle: a directed cycle exists among the named tasks.
	DependencyCycle Kind = iota
	// DuplicateTask: a task name was defined more than once.
	DuplicateTask
	// UndefinedTask: a dependency (or image) name does not resolve to
	// any known task.
	UndefinedTask
	// TooManyTasks: the pipeline has more than taskset.MaxTasks tasks
	// plus distinct images.
	TooManyTasks
	// FailedTask: a task exited with a nonzero status or was killed. A
	// failure to spawn or wait on a task's subprocess is reported as IO,
	// not FailedTask.
	FailedTask
	// IO: any I/O, parse, or subprocess-spawn failure.
	IO
	// Worker: an internal channel send/receive failed (closed channel).
	Worker
)

// Error is the sum type surfaced by pipeline validation and by the run
// controller.
type Error struct {
	Kind   Kind
	Names  []string      // DependencyCycle, DuplicateTask, UndefinedTask
	N      int           // TooManyTasks
	TaskID taskset.TaskID // FailedTask
	Reason string        // FailedTask, Worker
	Err    error         // IO
}

func (e *Error) Error() string {
	switch e.Kind {
	case DependencyCycle:
		return "dependency cycle containing the following tasks:\n  - " + strings.Join(e.Names, "\n  - ")
	case DuplicateTask:
		return fmt.Sprintf("task %s defined multiple times", e.Names[0])
	case UndefinedTask:
		return fmt.Sprintf("undefined task name '%s'", e.Names[0])
	case TooManyTasks:
		return fmt.Sprintf("too many (%d > %d) tasks + images", e.N, taskset.MaxTasks-1)
	case FailedTask:
		return fmt.Sprintf("task [%d] failed:\n%s", e.TaskID, e.Reason)
	case IO:
		return e.Err.Error()
	case Worker:
		return e.Reason
	default:
		return "unknown error"
	}
}

// Unwrap lets errors.Is/As reach a wrapped I/O error.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so callers
// can write errors.Is(err, &runrerr.Error{Kind: runrerr.DependencyCycle});
// KindOf below returns the Kind directly.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func NewDependencyCycle(names []string) *Error { return &Error{Kind: DependencyCycle, Names: names} }
func NewDuplicateTask(name string) *Error      { return &Error{Kind: DuplicateTask, Names: []string{name}} }
func NewUndefinedTask(name string) *Error      { return &Error{Kind: UndefinedTask, Names: []string{name}} }
func NewTooManyTasks(n int) *Error             { return &Error{Kind: TooManyTasks, N: n} }
func NewFailedTask(id taskset.TaskID, reason string) *Error {
	return &Error{Kind: FailedTask, TaskID: id, Reason: reason}
}
func NewIO(err error) *Error      { return &Error{Kind: IO, Err: err} }
func NewWorker(msg string) *Error { return &Error{Kind: Worker, Reason: msg} }

// KindOf returns the Kind of the given error if it is (or wraps) a
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}
