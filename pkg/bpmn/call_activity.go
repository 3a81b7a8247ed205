package bpmn

import (
	"context"
	"errors"
	"maps"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

// callActivityBehavior runs another process definition as a child process.
// The child process uses the id of the call activity execution as its own id.
type callActivityBehavior struct {
	*defaultBehavior
}

func (b *callActivityBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	call := activity.Definition.Call
	if err := b.engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
		return err
	}
	holder, err := b.engine.variableHolder(ctx, activity)
	if err != nil {
		return err
	}
	var inputs map[string]any
	if call.ProcessAllInputs {
		inputs = holder.Flatten()
	} else {
		inputs, err = holder.EvaluateMappings(call.Inputs, b.engine.evaluateExpression)
		if err != nil {
			return err
		}
	}
	_, err = b.engine.dispatcher.Execute(ctx, StartProcessCommand{
		Key:           call.CalledElement,
		Version:       call.CalledElementVersion,
		BusinessKey:   activity.Process.BusinessKey,
		Variables:     inputs,
		ProcessId:     activity.Id,
		ParentId:      activity.ProcessId,
		RootProcessId: activity.Process.RootProcessId,
	})
	return err
}

func (b *callActivityBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	call := activity.Definition.Call
	childVariables, err := b.engine.ProcessVariables(ctx, activity.Id)
	if err != nil {
		return nil, err
	}
	var outputs map[string]any
	if call.ProcessAllOutputs {
		outputs = childVariables
	} else {
		holder := runtime.NewVariableHolder(nil, activity.Id, childVariables)
		outputs, err = holder.EvaluateMappings(call.Outputs, b.engine.evaluateExpression)
		if err != nil {
			return nil, err
		}
	}
	maps.Copy(outputs, variables)
	return b.defaultBehavior.Complete(ctx, activity, outputs)
}

// Retry retries the failed activities of the child process. A child that never
// started is started again.
func (b *callActivityBehavior) Retry(ctx context.Context, activity *runtime.ActivityExecution) error {
	activity.Failure = nil
	if err := b.engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
		return err
	}
	_, err := b.engine.persistence.FindProcessById(ctx, activity.Id)
	if errors.Is(err, storage.ErrNotFound) {
		b.engine.dispatchAsync(ctx, RunActivityCommand{Ref: RefById(activity.Id)})
		return nil
	}
	if err != nil {
		return err
	}
	failed, err := b.engine.persistence.FindFailed(ctx, activity.Id)
	if err != nil {
		return err
	}
	return b.engine.dispatch(ctx, RetryActivitiesCommand{Activities: failed})
}

func (b *callActivityBehavior) Terminate(ctx context.Context, activity *runtime.ActivityExecution, withInterruption bool) error {
	if err := b.engine.dispatch(ctx, TerminateProcessCommand{ProcessId: activity.Id}); err != nil && !errors.Is(err, ErrProcessNotFound) {
		return err
	}
	return b.defaultBehavior.Terminate(ctx, activity, withInterruption)
}

func (b *callActivityBehavior) Cancel(ctx context.Context, activity *runtime.ActivityExecution) error {
	if err := b.engine.dispatch(ctx, CancelProcessCommand{ProcessId: activity.Id}); err != nil && !errors.Is(err, ErrProcessNotFound) {
		return err
	}
	return b.defaultBehavior.Cancel(ctx, activity)
}
