package bpmn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskExecutorRunsEverySubmittedTask(t *testing.T) {
	// setup
	executor := NewTaskExecutor(2, 1)
	defer executor.Stop()
	var done atomic.Int32

	// when
	futures := make([]*Future, 0, 20)
	for range 20 {
		futures = append(futures, executor.Submit(t.Context(), func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return nil
		}))
	}

	// then
	require.NoError(t, AllOf(futures...))
	assert.Equal(t, int32(20), done.Load())
	assert.NoError(t, executor.Idle(t.Context()))
}

func TestAllOfJoinsErrors(t *testing.T) {
	// setup
	executor := NewTaskExecutor(1, 4)
	defer executor.Stop()
	errA := errors.New("a")
	errB := errors.New("b")

	// when
	err := AllOf(
		executor.Submit(t.Context(), func(ctx context.Context) error { return errA }),
		executor.Submit(t.Context(), func(ctx context.Context) error { return nil }),
		executor.Submit(t.Context(), func(ctx context.Context) error { return errB }),
	)

	// then
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestTaskExecutorRecoversPanics(t *testing.T) {
	// setup
	executor := NewTaskExecutor(1, 1)
	defer executor.Stop()

	// when
	err := executor.Submit(t.Context(), func(ctx context.Context) error { panic("bad task") }).Wait()

	// then
	assert.ErrorContains(t, err, "bad task")
	assert.NoError(t, executor.Idle(t.Context()))
}

func TestTaskExecutorIdleHonoursContext(t *testing.T) {
	// setup
	executor := NewTaskExecutor(1, 1)
	defer executor.Stop()
	release := make(chan struct{})
	executor.Submit(t.Context(), func(ctx context.Context) error {
		<-release
		return nil
	})
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	// when
	err := executor.Idle(ctx)
	close(release)

	// then
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, executor.Idle(t.Context()))
}

func TestTaskExecutorRejectsTasksAfterStop(t *testing.T) {
	// setup
	executor := NewTaskExecutor(1, 1)
	executor.Stop()

	// when
	err := executor.Submit(t.Context(), func(ctx context.Context) error { return nil }).Wait()

	// then
	assert.ErrorIs(t, err, ErrExecutorStopped)
	executor.Stop()
}

func TestTaskExecutorMarksWorkerContext(t *testing.T) {
	// setup
	executor := NewTaskExecutor(1, 1)
	defer executor.Stop()
	var marked atomic.Bool

	// when
	err := executor.Submit(t.Context(), func(ctx context.Context) error {
		marked.Store(onWorker(ctx))
		return nil
	}).Wait()

	// then
	require.NoError(t, err)
	assert.True(t, marked.Load())
	assert.False(t, onWorker(t.Context()))
}
