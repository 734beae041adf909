package activitypub

import (
	"sync"

	"github.com/labstack/gommon/log"
)

// Task is a unit of non-critical fan-out work: notification creation and
// outbound follow responses. Tasks never block or fail the primary inbox
// response; their failures are logged and go nowhere else.
type Task struct {
	Name string
	Run  func() error
}

// TaskRunner executes tasks on background workers with a bounded queue.
type TaskRunner struct {
	queue  chan Task
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewTaskRunner(buffer int) *TaskRunner {
	if buffer <= 0 {
		buffer = 256
	}
	return &TaskRunner{queue: make(chan Task, buffer)}
}

// Start launches the worker goroutines.
func (t *TaskRunner) Start(workers int) {
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		t.wg.Add(1)
		go t.worker()
	}
}

func (t *TaskRunner) worker() {
	defer t.wg.Done()
	for task := range t.queue {
		if err := task.Run(); err != nil {
			log.Warnf("Task %s failed: %v", task.Name, err)
		}
	}
}

// Submit enqueues a task without blocking. When the queue is full or the
// runner has been stopped the task is dropped; fan-out is best-effort by
// contract.
func (t *TaskRunner) Submit(name string, fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		log.Warnf("Task runner stopped, dropping %s", name)
		return
	}
	select {
	case t.queue <- Task{Name: name, Run: fn}:
	default:
		log.Warnf("Task queue full, dropping %s", name)
	}
}

// Stop closes the queue and waits for in-flight tasks to finish. Submit
// calls arriving after Stop drop their task.
func (t *TaskRunner) Stop() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	t.wg.Wait()
}
