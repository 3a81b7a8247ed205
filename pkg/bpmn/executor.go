package bpmn

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrExecutorStopped is returned by futures of tasks submitted after Stop.
var ErrExecutorStopped = errors.New("task executor stopped")

type workerKey struct{}

// onWorker reports whether ctx belongs to a task running on a TaskExecutor worker.
func onWorker(ctx context.Context) bool {
	v, _ := ctx.Value(workerKey{}).(bool)
	return v
}

type task struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	future *Future
}

// Future is the result of a submitted task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the task finished and returns its error.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// AllOf waits for every future and joins their errors.
func AllOf(futures ...*Future) error {
	var errJoin error
	for _, f := range futures {
		errJoin = errors.Join(errJoin, f.Wait())
	}
	return errJoin
}

// TaskExecutor is a bounded worker pool. Submit never blocks the caller, tasks
// that do not fit into the queue are held in an overflow list until a worker picks them up.
type TaskExecutor struct {
	tasks    chan task
	mu       sync.Mutex
	cond     *sync.Cond
	overflow []task
	pending  int
	stopped  bool
	wg       sync.WaitGroup
}

func NewTaskExecutor(workers int, queueSize int) *TaskExecutor {
	if workers < 1 {
		workers = 1
	}
	e := &TaskExecutor{
		tasks:    make(chan task, queueSize),
		overflow: make([]task, 0),
	}
	e.cond = sync.NewCond(&e.mu)
	for range workers {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *TaskExecutor) worker() {
	defer e.wg.Done()
	for t := range e.tasks {
		e.run(t)
		e.refill()
	}
}

func (e *TaskExecutor) run(t task) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
		t.future.complete(err)
		e.mu.Lock()
		e.pending--
		e.cond.Broadcast()
		e.mu.Unlock()
	}()
	err = t.fn(context.WithValue(t.ctx, workerKey{}, true))
}

// refill moves overflow tasks into the queue while there is room.
func (e *TaskExecutor) refill() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.overflow) > 0 && !e.stopped {
		select {
		case e.tasks <- e.overflow[0]:
			e.overflow = e.overflow[1:]
		default:
			return
		}
	}
}

// Submit schedules fn and returns its future.
func (e *TaskExecutor) Submit(ctx context.Context, fn func(ctx context.Context) error) *Future {
	future := newFuture()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		future.complete(ErrExecutorStopped)
		return future
	}
	e.pending++
	t := task{ctx: ctx, fn: fn, future: future}
	if len(e.overflow) > 0 {
		e.overflow = append(e.overflow, t)
		return future
	}
	select {
	case e.tasks <- t:
	default:
		e.overflow = append(e.overflow, t)
	}
	return future
}

// Idle blocks until no task is queued or running, or ctx is done.
func (e *TaskExecutor) Idle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	for e.pending > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.cond.Wait()
	}
	return nil
}

// Stop rejects new tasks, fails the overflow and waits for the running workers.
func (e *TaskExecutor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	for _, t := range e.overflow {
		t.future.complete(ErrExecutorStopped)
		e.pending--
	}
	e.overflow = nil
	close(e.tasks)
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}
