package script

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ShrinkInterval is how often idle runners above the minimum are released.
var ShrinkInterval = 10 * time.Minute

// RunnerPool hands out evaluation vms that are not safe for concurrent use.
// It keeps at least min vms alive and never creates more than max.
type RunnerPool[R any] struct {
	idle    chan R
	create  func() R
	mu      sync.Mutex
	created int
	min     int
	max     int
}

func NewRunnerPool[R any](ctx context.Context, create func() R, max int, min int) *RunnerPool[R] {
	if max < min {
		panic(fmt.Sprintf("vm pool max size %d is smaller than min size %d", max, min))
	}
	pool := &RunnerPool[R]{
		idle:   make(chan R, max),
		create: create,
		min:    min,
		max:    max,
	}
	for range min {
		pool.idle <- create()
		pool.created++
	}
	go pool.shrinkUntilDone(ctx)
	return pool
}

func (p *RunnerPool[R]) shrinkUntilDone(ctx context.Context) {
	ticker := time.NewTicker(ShrinkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.shrink()
		case <-ctx.Done():
			return
		}
	}
}

func (p *RunnerPool[R]) shrink() {
	for len(p.idle) > p.min {
		select {
		case <-p.idle:
			p.release()
		default:
			return
		}
	}
}

func (p *RunnerPool[R]) release() {
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
}

// Size returns the number of vms currently owned by the pool, idle or borrowed.
func (p *RunnerPool[R]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Borrow returns an idle vm, creates one while below max, or waits for one to be returned.
func (p *RunnerPool[R]) Borrow() R {
	select {
	case runner := <-p.idle:
		return runner
	default:
	}
	p.mu.Lock()
	if p.created < p.max {
		p.created++
		p.mu.Unlock()
		return p.create()
	}
	p.mu.Unlock()
	return <-p.idle
}

func (p *RunnerPool[R]) Return(runner R) {
	select {
	case p.idle <- runner:
	default:
		p.release()
	}
}
