package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/logging"
	"github.com/dmitrijs2005/linksphere/internal/server/metrics"
)

type task struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

// TaskQueue runs fire-and-forget work off the request path. Enqueued tasks go
// through a bounded buffer drained by a fixed worker pool; Go starts a tracked
// goroutine whose result the caller may wait on.
type TaskQueue struct {
	tasks   chan task
	log     logging.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool

	workers sync.WaitGroup
	inline  sync.WaitGroup
}

func NewTaskQueue(workers, size int, log logging.Logger, m *metrics.Metrics) *TaskQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}

	q := &TaskQueue{
		tasks:   make(chan task, size),
		log:     log.With("module", "tasks"),
		metrics: m,
	}

	for i := 0; i < workers; i++ {
		q.workers.Add(1)
		go q.worker()
	}

	return q
}

// Enqueue never blocks. It reports false when the task was dropped because
// the queue is full or closed.
func (q *TaskQueue) Enqueue(name string, timeout time.Duration, fn func(ctx context.Context) error) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.log.Warn(context.Background(), "task dropped, queue closed", "task", name)
		q.metrics.TaskDropped()
		return false
	}

	select {
	case q.tasks <- task{name: name, timeout: timeout, run: fn}:
		return true
	default:
		q.log.Warn(context.Background(), "task dropped, queue full", "task", name)
		q.metrics.TaskDropped()
		return false
	}
}

// Go runs fn in its own goroutine and delivers the result on the returned
// channel, which is buffered so nobody has to read it.
func (q *TaskQueue) Go(name string, timeout time.Duration, fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		done <- fmt.Errorf("task %s: queue closed", name)
		return done
	}

	q.inline.Add(1)
	go func() {
		defer q.inline.Done()
		done <- q.run(task{name: name, timeout: timeout, run: fn})
	}()

	return done
}

// Close stops accepting work and waits for queued and running tasks, or for
// ctx to end.
func (q *TaskQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.workers.Wait()
		q.inline.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *TaskQueue) worker() {
	defer q.workers.Done()
	for t := range q.tasks {
		_ = q.run(t)
	}
}

func (q *TaskQueue) run(t task) (err error) {
	ctx := context.Background()
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, p)
		}
		if err != nil {
			q.log.Error(ctx, "background task failed", "task", t.name, "error", err)
			q.metrics.TaskFailed()
		}
	}()

	return t.run(ctx)
}
