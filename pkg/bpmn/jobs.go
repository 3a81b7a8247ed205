package bpmn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	bpmnotel "github.com/pbinitiative/zenorchestrator/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ExternalTask is an activity handed to a worker together with the variables it can see.
type ExternalTask struct {
	Id                   string         `json:"id"`
	ProcessId            string         `json:"processId"`
	BusinessKey          string         `json:"businessKey,omitempty"`
	DefinitionId         string         `json:"definitionId"`
	ProcessDefinitionKey string         `json:"processDefinitionKey"`
	Topic                string         `json:"topic"`
	Retries              int            `json:"retries"`
	Timeout              *time.Time     `json:"timeout,omitempty"`
	Variables            map[string]any `json:"variables"`
}

// handlePollExternalTasks claims queued tasks and activates them. A claimed task that
// ended in the meantime is dropped.
func (engine *Engine) handlePollExternalTasks(ctx context.Context, cmd PollExternalTasksCommand) ([]ExternalTask, error) {
	if cmd.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrIllegalArgument)
	}
	if cmd.Limit <= 0 {
		return []ExternalTask{}, nil
	}
	ids, err := engine.persistence.PollQueue(ctx, cmd.Topic, cmd.ProcessDefinitionKey, cmd.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to poll topic %s: %w", cmd.Topic, err)
	}
	tasks := make([]ExternalTask, 0, len(ids))
	var errJoin error
	for _, id := range ids {
		activity, err := engine.loadActivity(ctx, RefById(id))
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		if activity.IsInTerminalState() {
			continue
		}
		if activity.State == runtime.ActivityScheduled {
			if err := engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
				errJoin = errors.Join(errJoin, err)
				continue
			}
		}
		variables, err := engine.ScopedVariables(ctx, activity)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		tasks = append(tasks, ExternalTask{
			Id:                   activity.Id,
			ProcessId:            activity.ProcessId,
			BusinessKey:          activity.Process.BusinessKey,
			DefinitionId:         activity.DefinitionId,
			ProcessDefinitionKey: activity.DefinitionKey,
			Topic:                activity.Topic,
			Retries:              activity.Retries,
			Timeout:              activity.Timeout,
			Variables:            variables,
		})
	}
	engine.metrics.ExternalTasksPolled.Add(ctx, int64(len(tasks)), metric.WithAttributes(attribute.String(bpmnotel.AttributeTopic, cmd.Topic)))
	if errJoin != nil {
		engine.logger.Error("failed to activate some polled tasks", "topic", cmd.Topic, "err", errJoin)
	}
	return tasks, nil
}
