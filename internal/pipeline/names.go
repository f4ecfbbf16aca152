package pipeline

import (
	"fmt"

	"github.com/swarmguard/runr/internal/runrerr"
	"github.com/swarmguard/runr/internal/taskset"
)

// nameKind distinguishes a task name from an image name sharing the same
// string space, so "build" (a task) and "build" (an image tag) never
// collide.
type nameKind int

const (
	kindTask nameKind = iota
	kindImage
)

type nameKey struct {
	kind nameKind
	name string
}

// taskNames assigns a dense, monotonically increasing taskset.TaskID to
// every distinct task name and every distinct image name referenced by a
// raw pipeline, erroring once more than taskset.MaxTasks ids would be
// required.
type taskNames struct {
	ids  map[nameKey]taskset.TaskID
	next int
}

func newTaskNames(rawTasks []RawTask, defaultImage string) (*taskNames, error) {
	n := &taskNames{ids: make(map[nameKey]taskset.TaskID)}
	for _, rt := range rawTasks {
		image := defaultImage
		if rt.Image != nil {
			image = *rt.Image
		}
		imgKey := nameKey{kindImage, image}
		if _, ok := n.ids[imgKey]; !ok {
			id, err := n.fetchIncr()
			if err != nil {
				return nil, err
			}
			n.ids[imgKey] = id
		}

		taskKey := nameKey{kindTask, rt.Name}
		if _, ok := n.ids[taskKey]; ok {
			return nil, runrerr.NewDuplicateTask(rt.Name)
		}
		id, err := n.fetchIncr()
		if err != nil {
			return nil, err
		}
		n.ids[taskKey] = id
	}
	return n, nil
}

func (n *taskNames) fetchIncr() (taskset.TaskID, error) {
	if n.next >= taskset.MaxTasks {
		return 0, runrerr.NewTooManyTasks(n.next + 1)
	}
	id := taskset.TaskID(n.next)
	n.next++
	return id, nil
}

func (n *taskNames) taskID(name string) (taskset.TaskID, error) {
	id, ok := n.ids[nameKey{kindTask, name}]
	if !ok {
		return 0, runrerr.NewUndefinedTask(name)
	}
	return id, nil
}

func (n *taskNames) imageID(image string) (taskset.TaskID, error) {
	id, ok := n.ids[nameKey{kindImage, image}]
	if !ok {
		return 0, runrerr.NewUndefinedTask(fmt.Sprintf("pull '%s'", image))
	}
	return id, nil
}
