package bpmn

import (
	"context"
	"fmt"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

// subprocessBehavior runs its nested flow and completes once every nested activity is done.
type subprocessBehavior struct {
	*defaultBehavior
}

func (b *subprocessBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	return b.start(ctx, activity, model.ActivityTypeStartEvent)
}

func (b *subprocessBehavior) start(ctx context.Context, activity *runtime.ActivityExecution, startTypes ...model.ActivityType) error {
	start, ok := activity.Process.Definition.ChildStartEvent(activity.DefinitionId, startTypes...)
	if !ok {
		return fmt.Errorf("%w: %s %s", model.ErrStartEventNotFound, activity.Type, activity.DefinitionId)
	}
	if err := b.engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
		return err
	}
	return b.engine.runNext(ctx, activity.Process, []*model.ActivityDefinition{start})
}

func (b *subprocessBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	descendants := activity.Process.Definition.DescendantIds(activity.DefinitionId)
	done, err := b.engine.persistence.IsAllCompleted(ctx, activity.ProcessId, descendants...)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, nil
	}
	return b.defaultBehavior.Complete(ctx, activity, variables)
}

func (b *subprocessBehavior) Terminate(ctx context.Context, activity *runtime.ActivityExecution, withInterruption bool) error {
	descendants := activity.Process.Definition.DescendantIds(activity.DefinitionId)
	if len(descendants) > 0 {
		if err := b.engine.dispatch(ctx, TerminateAllActivitiesCommand{ProcessId: activity.ProcessId, DefinitionIds: descendants}); err != nil {
			return err
		}
	}
	return b.defaultBehavior.Terminate(ctx, activity, withInterruption)
}

func (b *subprocessBehavior) Cancel(ctx context.Context, activity *runtime.ActivityExecution) error {
	descendants := activity.Process.Definition.DescendantIds(activity.DefinitionId)
	if len(descendants) > 0 {
		active, err := b.engine.persistence.FindActiveActivities(ctx, activity.ProcessId, descendants...)
		if err != nil {
			return err
		}
		for _, a := range active {
			if err := b.engine.dispatch(ctx, CancelActivityCommand{Ref: RefById(a.Id)}); err != nil {
				return err
			}
		}
	}
	return b.defaultBehavior.Cancel(ctx, activity)
}

// eventSubprocessBehavior is started by one of its message, error or escalation start events.
type eventSubprocessBehavior struct {
	*subprocessBehavior
}

func (b *eventSubprocessBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	return b.start(ctx, activity, model.ActivityTypeMessageStartEvent, model.ActivityTypeErrorStartEvent, model.ActivityTypeEscalationStartEvent)
}
