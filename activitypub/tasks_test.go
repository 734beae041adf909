package activitypub

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskRunnerRunsSubmittedTasks(t *testing.T) {
	runner := NewTaskRunner(4)
	runner.Start(2)

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		runner.Submit("count", func() error {
			ran.Add(1)
			return nil
		})
	}
	runner.Stop()

	if got := ran.Load(); got != 3 {
		t.Errorf("Expected 3 tasks to run, got %d", got)
	}
}

func TestSubmitAfterStopDropsTask(t *testing.T) {
	runner := NewTaskRunner(4)
	runner.Start(1)
	runner.Stop()

	ran := make(chan struct{}, 1)
	runner.Submit("late", func() error {
		ran <- struct{}{}
		return nil
	})

	select {
	case <-ran:
		t.Error("Task submitted after Stop should be dropped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopIsIdempotent(t *testing.T) {
	runner := NewTaskRunner(1)
	runner.Start(1)
	runner.Stop()
	runner.Stop()
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	// No workers started, so nothing drains the queue.
	runner := NewTaskRunner(1)

	runner.Submit("first", func() error { return nil })
	runner.Submit("overflow", func() error { return nil })

	if got := len(runner.queue); got != 1 {
		t.Errorf("Expected queue length 1 after overflow, got %d", got)
	}
}
