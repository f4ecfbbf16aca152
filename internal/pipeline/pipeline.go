// Package pipeline implements the task/dependency data model: parsing
// runr.yaml, resolving task and image names into dense TaskIDs, and
// validating the resulting dependency graph.
package pipeline

import (
	"io"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/swarmguard/runr/internal/runrerr"
	"github.com/swarmguard/runr/internal/taskset"
)

// Pipeline is a fully resolved and validated set of tasks, ready to run.
type Pipeline struct {
	NParallel int
	Tasks     map[taskset.TaskID]Task
}

// ReadFrom decodes runr.yaml from r and validates it, falling back to
// defaultImage for any task that does not name its own image.
func ReadFrom(r io.Reader, defaultImage string) (*Pipeline, error) {
	var raw RawPipeline
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromRaw(raw, defaultImage)
}

// FromRaw resolves a RawPipeline into a Pipeline: assigns TaskIDs,
// synthesizes PullImage tasks, and rejects undefined dependencies,
// duplicate names, too many tasks, and dependency cycles.
func FromRaw(raw RawPipeline, defaultImage string) (*Pipeline, error) {
	nParallel, err := resolveNParallel(raw.NParallel)
	if err != nil {
		return nil, err
	}

	tasks, err := resolveTasks(raw, defaultImage)
	if err != nil {
		return nil, err
	}

	if cycle := checkCycles(tasks); cycle != nil {
		names := make([]string, 0, len(cycle))
		for _, id := range cycle.Ids() {
			names = append(names, tasks[id].String())
		}
		return nil, runrerr.NewDependencyCycle(names)
	}

	return &Pipeline{NParallel: nParallel, Tasks: tasks}, nil
}

func resolveNParallel(n *int) (int, error) {
	if n == nil {
		return 1, nil
	}
	if *n == 0 {
		return runtime.NumCPU(), nil
	}
	return *n, nil
}

// resolveTasks assigns TaskIDs to every task and image name, synthesizing
// one PullImage task per distinct image.
func resolveTasks(raw RawPipeline, defaultImage string) (map[taskset.TaskID]Task, error) {
	if raw.DefaultImage != nil {
		defaultImage = *raw.DefaultImage
	}

	names, err := newTaskNames(raw.Tasks, defaultImage)
	if err != nil {
		return nil, err
	}

	tasks := make(map[taskset.TaskID]Task, len(raw.Tasks)*2)
	for _, rt := range raw.Tasks {
		var depends taskset.TaskSet
		for _, dep := range rt.Depends {
			depID, err := names.taskID(dep)
			if err != nil {
				return nil, err
			}
			depends = depends.Add(depID)
		}

		image := defaultImage
		if rt.Image != nil {
			image = *rt.Image
		}
		imageID, err := names.imageID(image)
		if err != nil {
			return nil, err
		}
		depends = depends.Add(imageID)

		if _, ok := tasks[imageID]; !ok {
			tasks[imageID] = NewPullImage(image)
		}

		id, err := names.taskID(rt.Name)
		if err != nil {
			return nil, err
		}
		tasks[id] = NewCommandLine(rt.Name, rt.Commands, image, depends)
	}
	return tasks, nil
}

// NameWidth is the column width used to left-pad a task's name when
// prefixing its streamed stdout/stderr lines: the longest CommandLine
// task name plus two, capped at 10.
func (p *Pipeline) NameWidth() int {
	const maxWidth = 10
	longest := 0
	for _, t := range p.Tasks {
		w, ok := t.NameWidth()
		if !ok {
			continue
		}
		if w > longest {
			longest = w
		}
	}
	width := longest + 2
	if width > maxWidth {
		return maxWidth
	}
	return width
}
