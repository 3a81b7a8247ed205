package bpmn

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

// receiveBehavior waits until a message (or a timer, or a condition) triggers it.
type receiveBehavior struct {
	*defaultBehavior
}

func (b *receiveBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	return b.engine.changeState(ctx, activity, runtime.ActivityActive)
}

func (b *receiveBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	activity.Timeout = nil
	completion, err := b.defaultBehavior.Complete(ctx, activity, variables)
	if err != nil {
		return nil, err
	}
	if err := b.engine.closeEventGateway(ctx, activity); err != nil {
		return nil, err
	}
	return completion, nil
}

func (b *receiveBehavior) Terminate(ctx context.Context, activity *runtime.ActivityExecution, withInterruption bool) error {
	if err := b.defaultBehavior.Terminate(ctx, activity, withInterruption); err != nil {
		return err
	}
	return b.engine.closeEventGateway(ctx, activity)
}

func (b *receiveBehavior) Trigger(ctx context.Context, process *runtime.Process, definition *model.ActivityDefinition) error {
	return b.engine.triggerActive(ctx, process, definition)
}

// intermediateCatchBehavior waits for its timer or its condition. Without either it passes straight through.
type intermediateCatchBehavior struct {
	*receiveBehavior
}

func (b *intermediateCatchBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	definition := activity.Definition
	if definition.Timer != nil {
		due, err := dueAt(definition.Timer, activity.CreatedAt)
		if err != nil {
			return err
		}
		activity.Timeout = &due
	}
	if err := b.engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
		return err
	}
	switch {
	case definition.Condition != nil:
		variables, err := b.engine.ScopedVariables(ctx, activity)
		if err != nil {
			return err
		}
		satisfied, err := b.engine.evaluateCondition(definition.Condition.Expression, variables)
		if err != nil {
			return err
		}
		if satisfied {
			b.engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(activity.Id)})
		}
	case definition.Timer == nil:
		b.engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(activity.Id)})
	}
	return nil
}

// closeEventGateway ends the race started by an event-based gateway in front of activity:
// the other waiting branches are terminated and the gateway completes without propagating.
func (engine *Engine) closeEventGateway(ctx context.Context, activity *runtime.ActivityExecution) error {
	definition := activity.Process.Definition
	for _, previous := range definition.PreviousActivities(activity.DefinitionId) {
		if previous.Type != model.ActivityTypeEventBasedGateway {
			continue
		}
		siblings := slices.DeleteFunc(slices.Clone(previous.Outgoing), func(id string) bool { return id == activity.DefinitionId })
		if len(siblings) > 0 {
			waiting, err := engine.persistence.FindActiveActivities(ctx, activity.ProcessId, siblings...)
			if err != nil {
				return err
			}
			if err := engine.dispatch(ctx, TerminateActivitiesCommand{Activities: waiting}); err != nil {
				return err
			}
		}
		gateway, err := engine.persistence.FindActivityByDefinitionId(ctx, activity.ProcessId, previous.Id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if gateway.IsInTerminalState() {
			continue
		}
		if err := engine.changeState(ctx, &gateway, runtime.ActivityCompleted); err != nil {
			return err
		}
	}
	return nil
}

// boundaryEventBehavior interrupts the activity it is attached to when it has CancelActivity set.
// Error boundary events always interrupt.
type boundaryEventBehavior struct {
	*defaultBehavior
}

// Trigger runs the boundary event while its activity is active. A fired timer always runs
// so that its armed execution is settled.
func (b *boundaryEventBehavior) Trigger(ctx context.Context, process *runtime.Process, definition *model.ActivityDefinition) error {
	if definition.Type != model.ActivityTypeTimerBoundaryEvent {
		attached, err := b.engine.persistence.FindActiveActivities(ctx, process.Id, definition.AttachedToRef())
		if err != nil {
			return err
		}
		if len(attached) == 0 {
			return nil
		}
	}
	b.engine.dispatchAsync(ctx, RunActivityCommand{Definition: definition, ProcessId: process.Id})
	return nil
}

func (b *boundaryEventBehavior) Run(ctx context.Context, activity *runtime.ActivityExecution) error {
	activity.Timeout = nil
	attached, err := b.engine.persistence.FindActivityByDefinitionId(ctx, activity.ProcessId, activity.Definition.AttachedToRef())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err != nil || attached.IsInTerminalState() {
		b.engine.logger.Debug("boundary event ignored, attached activity is not active", "boundary", activity.DefinitionId, "process", activity.ProcessId)
		return b.engine.changeState(ctx, activity, runtime.ActivityCanceled)
	}
	if err := b.engine.changeState(ctx, activity, runtime.ActivityActive); err != nil {
		return err
	}
	if activity.Definition.CancelActivity() || activity.Type == model.ActivityTypeErrorBoundaryEvent {
		if err := b.engine.dispatch(ctx, TerminateActivityCommand{Ref: RefById(attached.Id)}); err != nil {
			return err
		}
	}
	b.engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(activity.Id)})
	return nil
}

// eventSubprocessStartBehavior starts the event subprocess around it when triggered.
type eventSubprocessStartBehavior struct {
	*defaultBehavior
}

// Trigger starts the event subprocess. One nested in a subprocess only starts while that subprocess runs.
func (b *eventSubprocessStartBehavior) Trigger(ctx context.Context, process *runtime.Process, definition *model.ActivityDefinition) error {
	eventSubprocess, ok := process.Definition.GetActivityById(definition.ParentId)
	if !ok {
		return fmt.Errorf("%w: start event %s is not placed in an event subprocess", ErrIllegalArgument, definition.Id)
	}
	if eventSubprocess.ParentId != "" {
		running, err := b.engine.persistence.FindActiveActivities(ctx, process.Id, eventSubprocess.ParentId)
		if err != nil {
			return err
		}
		if len(running) == 0 {
			return nil
		}
	}
	b.engine.dispatchAsync(ctx, RunActivityCommand{Definition: eventSubprocess, Process: process})
	return nil
}

func (b *eventSubprocessStartBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	if isInterrupting(activity.Definition) {
		if err := b.interruptScope(ctx, activity); err != nil {
			return nil, err
		}
	}
	return b.defaultBehavior.Complete(ctx, activity, variables)
}

// interruptScope terminates everything running in the scope enclosing the event subprocess of activity.
func (b *eventSubprocessStartBehavior) interruptScope(ctx context.Context, activity *runtime.ActivityExecution) error {
	definition := activity.Process.Definition
	eventSubprocess, ok := definition.GetActivityById(activity.Definition.ParentId)
	if !ok {
		return nil
	}
	var scopeIds []string
	if eventSubprocess.ParentId != "" {
		scopeIds = definition.DescendantIds(eventSubprocess.ParentId)
	}
	active, err := b.engine.persistence.FindActiveActivities(ctx, activity.ProcessId, scopeIds...)
	if err != nil {
		return err
	}
	active = slices.DeleteFunc(active, func(a runtime.ActivityExecution) bool {
		return a.Async || a.DefinitionId == eventSubprocess.Id
	})
	b.engine.logger.Debug("event subprocess interrupts its scope", "eventSubprocess", eventSubprocess.Id, "terminated", len(active))
	return b.engine.dispatch(ctx, TerminateActivitiesCommand{Activities: active})
}

// isInterrupting reports whether the event subprocess started by definition replaces the running scope.
// Error start events always interrupt.
func isInterrupting(definition *model.ActivityDefinition) bool {
	if definition.Type == model.ActivityTypeErrorStartEvent {
		return true
	}
	return definition.IsInterrupting()
}

type errorEndEventBehavior struct {
	*defaultBehavior
}

func (b *errorEndEventBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	if err := b.engine.completeActivity(ctx, activity, variables); err != nil {
		return nil, err
	}
	if err := b.engine.dispatch(ctx, CorrelateErrorCommand{Activity: activity, ErrorCode: activity.Definition.ErrorCode()}); err != nil {
		return nil, err
	}
	return &Completion{}, nil
}

type escalationThrowBehavior struct {
	*defaultBehavior
}

// Complete raises the escalation. An interrupting handler takes over the flow,
// otherwise the thrower continues with its outgoing activities.
func (b *escalationThrowBehavior) Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error) {
	if err := b.engine.completeActivity(ctx, activity, variables); err != nil {
		return nil, err
	}
	handler, err := b.engine.resolveEscalation(ctx, activity)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		return &Completion{Next: b.next(activity)}, nil
	}
	trigger := TriggerActivityCommand{Definition: handler.definition, Process: handler.process}
	if handler.interrupting() {
		if err := b.engine.dispatch(ctx, trigger); err != nil {
			return nil, err
		}
		return nil, nil
	}
	b.engine.dispatchAsync(ctx, trigger)
	return &Completion{Next: b.next(activity)}, nil
}
