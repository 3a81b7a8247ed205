package bpmn

import (
	"context"
	"fmt"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

// Completion tells the propagator where the flow continues after an activity completed.
type Completion struct {
	Next []*model.ActivityDefinition
}

// Behavior is the type specific part of an activity execution.
// Complete returns a nil Completion when the activity is not done yet
// or when it must not propagate any further.
type Behavior interface {
	Run(ctx context.Context, activity *runtime.ActivityExecution) error
	Complete(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) (*Completion, error)
}

type Cancellable interface {
	Cancel(ctx context.Context, activity *runtime.ActivityExecution) error
	Terminate(ctx context.Context, activity *runtime.ActivityExecution, withInterruption bool) error
}

// Failable behaviors decide whether a failure can still be recovered by a retry.
type Failable interface {
	Fail(ctx context.Context, activity *runtime.ActivityExecution, failure *runtime.ActivityFailure) (unrecoverable bool, err error)
	Retry(ctx context.Context, activity *runtime.ActivityExecution) error
}

// Triggerable behaviors are woken up by an outside event: a message, an error, a timer.
type Triggerable interface {
	Trigger(ctx context.Context, process *runtime.Process, definition *model.ActivityDefinition) error
}

type behaviorEntry struct {
	behavior    Behavior
	cancellable Cancellable
	failable    Failable
	triggerable Triggerable
}

func newBehaviorEntry(b Behavior) behaviorEntry {
	entry := behaviorEntry{behavior: b}
	entry.cancellable, _ = b.(Cancellable)
	entry.failable, _ = b.(Failable)
	entry.triggerable, _ = b.(Triggerable)
	return entry
}

type behaviorTable map[model.ActivityType]behaviorEntry

func newBehaviorTable(engine *Engine) behaviorTable {
	base := &defaultBehavior{engine: engine}
	external := &externalTaskBehavior{defaultBehavior: base}
	throw := &messageThrowBehavior{externalTaskBehavior: external}
	receive := &receiveBehavior{defaultBehavior: base}
	boundary := &boundaryEventBehavior{defaultBehavior: base}
	eventStart := &eventSubprocessStartBehavior{defaultBehavior: base}
	escalation := &escalationThrowBehavior{defaultBehavior: base}

	table := behaviorTable{
		model.ActivityTypeStartEvent:                       newBehaviorEntry(base),
		model.ActivityTypeEndEvent:                         newBehaviorEntry(base),
		model.ActivityTypeTerminateEndEvent:                newBehaviorEntry(base),
		model.ActivityTypeErrorEndEvent:                    newBehaviorEntry(&errorEndEventBehavior{defaultBehavior: base}),
		model.ActivityTypeEscalationEndEvent:               newBehaviorEntry(escalation),
		model.ActivityTypeEscalationIntermediateThrowEvent: newBehaviorEntry(escalation),
		model.ActivityTypeMessageEndEvent:                  newBehaviorEntry(throw),
		model.ActivityTypeMessageIntermediateThrowEvent:    newBehaviorEntry(throw),
		model.ActivityTypeSendTask:                         newBehaviorEntry(throw),
		model.ActivityTypeExternalTask:                     newBehaviorEntry(external),
		model.ActivityTypeReceiveTask:                      newBehaviorEntry(receive),
		model.ActivityTypeMessageIntermediateCatchEvent:    newBehaviorEntry(receive),
		model.ActivityTypeIntermediateCatchEvent:           newBehaviorEntry(&intermediateCatchBehavior{receiveBehavior: receive}),
		model.ActivityTypeExclusiveGateway:                 newBehaviorEntry(&exclusiveGatewayBehavior{defaultBehavior: base}),
		model.ActivityTypeInclusiveGateway:                 newBehaviorEntry(&inclusiveGatewayBehavior{defaultBehavior: base}),
		model.ActivityTypeParallelGateway:                  newBehaviorEntry(&parallelGatewayBehavior{defaultBehavior: base}),
		model.ActivityTypeEventBasedGateway:                newBehaviorEntry(&eventBasedGatewayBehavior{defaultBehavior: base}),
		model.ActivityTypeTimerBoundaryEvent:               newBehaviorEntry(boundary),
		model.ActivityTypeMessageBoundaryEvent:             newBehaviorEntry(boundary),
		model.ActivityTypeErrorBoundaryEvent:               newBehaviorEntry(boundary),
		model.ActivityTypeEscalationBoundaryEvent:          newBehaviorEntry(boundary),
		model.ActivityTypeMessageStartEvent:                newBehaviorEntry(eventStart),
		model.ActivityTypeErrorStartEvent:                  newBehaviorEntry(eventStart),
		model.ActivityTypeEscalationStartEvent:             newBehaviorEntry(eventStart),
		model.ActivityTypeSubprocess:                       newBehaviorEntry(&subprocessBehavior{defaultBehavior: base}),
		model.ActivityTypeEventSubprocess:                  newBehaviorEntry(&eventSubprocessBehavior{subprocessBehavior: &subprocessBehavior{defaultBehavior: base}}),
		model.ActivityTypeCallActivity:                     newBehaviorEntry(&callActivityBehavior{defaultBehavior: base}),
	}
	for _, t := range model.ActivityTypes {
		if _, ok := table[t]; !ok {
			panic(fmt.Sprintf("no behavior registered for activity type %s", t))
		}
	}
	return table
}

func (t behaviorTable) ResolveBehavior(activityType model.ActivityType) (Behavior, error) {
	entry, ok := t[activityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBehaviorNotFound, activityType)
	}
	return entry.behavior, nil
}

func (t behaviorTable) ResolveCancellable(activityType model.ActivityType) (Cancellable, bool) {
	entry, ok := t[activityType]
	return entry.cancellable, ok && entry.cancellable != nil
}

func (t behaviorTable) ResolveFailable(activityType model.ActivityType) (Failable, bool) {
	entry, ok := t[activityType]
	return entry.failable, ok && entry.failable != nil
}

func (t behaviorTable) ResolveTriggerable(activityType model.ActivityType) (Triggerable, bool) {
	entry, ok := t[activityType]
	return entry.triggerable, ok && entry.triggerable != nil
}
