package pipeline

import "github.com/swarmguard/runr/internal/taskset"

// checkCycles runs a DFS over the dependency graph looking for a task
// that (transitively) depends on itself. It returns the "checking" set at
// the moment a back-edge is found (every id on the current DFS path: the
// tasks of that cycle plus any tasks on the path leading into it), or nil
// if the graph is acyclic.
//
// This is deliberately DFS with checking/checked sets, not Kahn's
// algorithm: Kahn's algorithm belongs to a scheduler picking run order,
// not to this validation pass.
func checkCycles(tasks map[taskset.TaskID]Task) *taskset.TaskSet {
	var checked taskset.TaskSet
	for id := range tasks {
		var checking taskset.TaskSet
		if cycle := visit(id, &checked, &checking, tasks); cycle != nil {
			return cycle
		}
	}
	return nil
}

func visit(id taskset.TaskID, checked, checking *taskset.TaskSet, tasks map[taskset.TaskID]Task) *taskset.TaskSet {
	if checked.Contains(id) {
		return nil
	}
	if checking.Contains(id) {
		c := *checking
		return &c
	}
	*checking = checking.Add(id)
	for _, dep := range tasks[id].DependsOn().Ids() {
		if cycle := visit(dep, checked, checking, tasks); cycle != nil {
			return cycle
		}
	}
	*checking = checking.Remove(id)
	*checked = checked.Add(id)
	return nil
}
