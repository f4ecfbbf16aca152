package pipeline

import (
	"fmt"

	"github.com/swarmguard/runr/internal/taskset"
)

// Kind distinguishes the two members of the Task tagged union. Go has no
// sum types, so Kind plus the fields that apply to each case stand in for
// the original enum.
type Kind int

const (
	// CommandLine runs a shell script inside a freshly started container.
	CommandLine Kind = iota
	// PullImage pulls one container image; synthesized once per distinct
	// image referenced anywhere in the pipeline.
	PullImage
)

// Task is one node of the dependency graph: either a command-line step or
// a synthesized image pull that command-line steps depend on.
type Task struct {
	Kind     Kind
	Name     string         // CommandLine only
	Commands string         // CommandLine only
	Image    string         // both: image to pull / run under
	Depends  taskset.TaskSet // CommandLine only; always includes the image's PullImage id
}

// NewCommandLine builds a CommandLine task.
func NewCommandLine(name, commands, image string, depends taskset.TaskSet) Task {
	return Task{Kind: CommandLine, Name: name, Commands: commands, Image: image, Depends: depends}
}

// NewPullImage builds a PullImage task for the given image.
func NewPullImage(image string) Task {
	return Task{Kind: PullImage, Image: image}
}

// DependsOn returns the dependency set of t; PullImage tasks have none.
func (t Task) DependsOn() taskset.TaskSet {
	if t.Kind == PullImage {
		return taskset.TaskSet{}
	}
	return t.Depends
}

// NameWidth returns the length of t's display name, or 0 and false for a
// PullImage task (which has no per-task name to pad against).
func (t Task) NameWidth() (int, bool) {
	if t.Kind == PullImage {
		return 0, false
	}
	return len(t.Name), true
}

// String renders t the way it is echoed in error messages and logs.
func (t Task) String() string {
	if t.Kind == PullImage {
		return fmt.Sprintf("pull %s", t.Image)
	}
	return t.Name
}
