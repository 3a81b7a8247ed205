package bpmn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

const (
	JobTypeCompaction   = "COMPACTION"
	JobTypeTimeoutScan  = "TIMEOUT_SCAN"
	timeoutScanLockName = "timeout-scan"
	compactionLockName  = "compaction"
)

// scheduler runs the recurring engine jobs. Every run is guarded by a shedlock so
// that engines sharing a store do not run the same job at the same time.
type scheduler struct {
	engine  *Engine
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  hclog.Logger
}

func newScheduler(engine *Engine) *scheduler {
	return &scheduler{
		engine: engine,
		logger: engine.logger.Named("scheduler"),
	}
}

func (s *scheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	config := s.engine.config
	s.every(ctx, timeoutScanLockName, config.TimeoutScanInterval, func(ctx context.Context) error {
		return s.engine.dispatch(ctx, FailTimedOutActivitiesCommand{Limit: config.TimeoutScanBatch})
	})
	s.every(ctx, compactionLockName, config.CompactionInterval, func(ctx context.Context) error {
		_, err := s.engine.CompactHistory(ctx, config.CompactionBatch)
		return err
	})
}

func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.running = false
}

// every runs fn on each tick of interval. A non positive interval disables the job.
func (s *scheduler) every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	if interval <= 0 {
		s.logger.Debug("job disabled", "job", name)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.runLocked(ctx, name, fn); err != nil {
					s.logger.Error("job failed", "job", name, "err", err)
				}
			}
		}
	}()
}

func (s *scheduler) runLocked(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	acquired, err := s.engine.persistence.TryAcquireLock(ctx, name, time.Now().Add(s.engine.config.LockDuration), s.engine.name)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := s.engine.persistence.ReleaseLock(context.WithoutCancel(ctx), name); err != nil {
			s.logger.Error("failed to release lock", "lock", name, "err", err)
		}
	}()
	return fn(ctx)
}

// recordJob runs fn as a job of jobType and keeps its outcome in the job store.
func (engine *Engine) recordJob(ctx context.Context, jobType string, input map[string]any, fn func(ctx context.Context) (map[string]any, error)) (runtime.Job, error) {
	now := time.Now()
	job := runtime.Job{
		Id:        uuid.NewString(),
		Type:      jobType,
		Input:     input,
		State:     runtime.JobRunning,
		CreatedAt: now,
		StartedAt: &now,
	}
	if err := engine.persistence.SaveJob(ctx, job); err != nil {
		return job, fmt.Errorf("failed to save job %s: %w", job.Id, err)
	}
	output, err := fn(ctx)
	completedAt := time.Now()
	job.CompletedAt = &completedAt
	job.Output = output
	job.State = runtime.JobCompleted
	if err != nil {
		job.State = runtime.JobFailed
		job.Failure = err.Error()
	}
	if saveErr := engine.persistence.SaveJob(ctx, job); saveErr != nil {
		engine.logger.Error("failed to save job", "job", job.Id, "err", saveErr)
	}
	return job, err
}

// handleCompactHistory moves fully completed process trees into history.
func (engine *Engine) handleCompactHistory(ctx context.Context, cmd CompactHistoryCommand) (runtime.Job, error) {
	return engine.recordJob(ctx, JobTypeCompaction, map[string]any{"limit": cmd.Limit}, func(ctx context.Context) (map[string]any, error) {
		compacted, err := engine.compact(ctx, cmd.Limit)
		if compacted > 0 {
			engine.logger.Info("history compacted", "processes", compacted)
		}
		return map[string]any{"compacted": compacted}, err
	})
}

func (engine *Engine) compact(ctx context.Context, limit int) (int, error) {
	executions, err := engine.persistence.FindAllFullyCompleted(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to find completed processes: %w", err)
	}
	if len(executions) == 0 {
		return 0, nil
	}
	if err := engine.persistence.SaveHistory(ctx, executions); err != nil {
		return 0, fmt.Errorf("failed to move %d processes into history: %w", len(executions), err)
	}
	return len(executions), nil
}
