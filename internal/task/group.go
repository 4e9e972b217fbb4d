package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Group manages a set of tasks that are started and stopped together, the
// way cmd/opensmd bundles its periodic process_sm and process_subnet sweeps
// under one lifecycle.
type Group struct {
	mu    sync.Mutex
	tasks []*groupTask
}

type groupTask struct {
	id       int
	f        Func
	schedule Schedule
	stop     func(time.Duration) error
	reset    func()
}

// NewGroup returns an empty Group.
func NewGroup() *Group {
	return &Group{}
}

// Add registers a task to be run once Start is called, and returns its ID
// (stable, assigned in registration order) for diagnostics.
func (g *Group) Add(f Func, schedule Schedule) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := len(g.tasks)
	g.tasks = append(g.tasks, &groupTask{id: id, f: f, schedule: schedule})

	return id
}

// Reset forces the task with the given ID to re-run immediately, if it has
// been started.
func (g *Group) Reset(id int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id < 0 || id >= len(g.tasks) || g.tasks[id].reset == nil {
		return
	}

	g.tasks[id].reset()
}

// Start launches every registered task; ctx cancellation propagates into
// each task's Func.
func (g *Group) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range g.tasks {
		t.stop, t.reset = start(ctx, t.f, t.schedule)
	}
}

// Stop stops every started task, waiting up to timeout for each. It returns
// an error naming the IDs of any tasks that failed to stop in time.
func (g *Group) Stop(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var stillRunning []int

	for _, t := range g.tasks {
		if t.stop == nil {
			continue
		}

		if err := t.stop(timeout); err != nil {
			stillRunning = append(stillRunning, t.id)
		}
	}

	if len(stillRunning) > 0 {
		return fmt.Errorf("Task(s) still running: IDs %v", stillRunning)
	}

	return nil
}
