package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfabrics/go-opensm/internal/task"
)

func TestGroupRunsAddedTask(t *testing.T) {
	group := task.NewGroup()
	ok := make(chan struct{})
	group.Add(func(context.Context) { close(ok) }, task.Every(time.Second))

	group.Start(context.Background())
	defer func() { require.NoError(t, group.Stop(time.Second)) }()

	select {
	case <-ok:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestGroupStopReportsStillRunning(t *testing.T) {
	group := task.NewGroup()

	started := make(chan struct{})
	release := make(chan struct{})
	group.Add(func(context.Context) {
		close(started)
		<-release
	}, task.Every(time.Second))

	group.Start(context.Background())
	defer close(release)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task did not start")
	}

	err := group.Stop(10 * time.Millisecond)
	require.EqualError(t, err, "Task(s) still running: IDs [0]")
}
