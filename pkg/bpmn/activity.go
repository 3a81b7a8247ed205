package bpmn

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	bpmnotel "github.com/pbinitiative/zenorchestrator/pkg/otel"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// skipProgress reports whether a command must not move activity forward.
func skipProgress(activity *runtime.ActivityExecution) bool {
	if activity.IsInTerminalState() {
		return true
	}
	return activity.Process.IsInTerminalState() && !activity.IsAsync()
}

func (engine *Engine) resolveRunActivity(ctx context.Context, cmd RunActivityCommand) (*runtime.ActivityExecution, error) {
	if cmd.Ref != (ActivityRef{}) {
		return engine.loadActivity(ctx, cmd.Ref)
	}
	process := cmd.Process
	if process == nil {
		var err error
		process, err = engine.loadProcess(ctx, cmd.ProcessId)
		if err != nil {
			return nil, err
		}
	}
	definition := cmd.Definition
	if definition == nil {
		var ok bool
		definition, ok = process.Definition.GetActivityById(cmd.DefinitionId)
		if !ok {
			return nil, fmt.Errorf("%w: activity %s is not part of definition %s", ErrActivityNotFound, cmd.DefinitionId, process.Definition.Key)
		}
	}
	if definition.Type.IsBoundaryEvent() {
		// an armed timer already has its execution
		armed, err := engine.persistence.FindActiveActivities(ctx, process.Id, definition.Id)
		if err != nil {
			return nil, err
		}
		if len(armed) > 0 {
			return engine.hydrate(ctx, armed[0], process)
		}
	}
	return engine.newActivity(process, definition), nil
}

func (engine *Engine) handleRunActivity(ctx context.Context, cmd RunActivityCommand) error {
	activity, err := engine.resolveRunActivity(ctx, cmd)
	if err != nil {
		return err
	}
	if skipProgress(activity) {
		engine.logger.Debug("activity not run", "activity", activity.DefinitionId, "state", activity.State, "process", activity.ProcessId)
		return nil
	}
	if activity.Process.State == runtime.ProcessIncident {
		if err := engine.dispatch(ctx, ResolveProcessIncidentCommand{ProcessId: activity.ProcessId}); err != nil {
			return err
		}
	}
	behavior, err := engine.behaviors.ResolveBehavior(activity.Type)
	if err != nil {
		return err
	}
	if len(activity.Inputs()) > 0 {
		inputs, err := engine.Evaluate(ctx, activity, activity.Inputs())
		if err != nil {
			return engine.failExecution(ctx, activity, err)
		}
		if err := engine.SetVariablesLocal(ctx, activity, inputs); err != nil {
			return err
		}
		activity.Variables = inputs
	}
	if err := engine.armBoundaryTimers(ctx, activity); err != nil {
		return err
	}
	engine.logger.Debug("run activity", "activity", activity.DefinitionId, "type", activity.Type, "process", activity.ProcessId)
	if err := behavior.Run(ctx, activity); err != nil {
		return engine.failExecution(ctx, activity, err)
	}
	return nil
}

func (engine *Engine) handleCompleteActivity(ctx context.Context, cmd CompleteActivityCommand) error {
	activity, err := engine.loadActivity(ctx, cmd.Ref)
	if err != nil {
		return err
	}
	if skipProgress(activity) {
		engine.logger.Debug("activity not completed", "activity", activity.DefinitionId, "state", activity.State, "process", activity.ProcessId)
		return nil
	}
	behavior, err := engine.behaviors.ResolveBehavior(activity.Type)
	if err != nil {
		return err
	}
	completion, err := behavior.Complete(ctx, activity, cmd.Variables)
	if err != nil {
		return engine.failExecution(ctx, activity, err)
	}
	if completion == nil {
		return nil
	}
	return engine.dispatch(ctx, HandleActivityCompletionCommand{Activity: activity, Next: completion.Next})
}

// completeActivity hands outputs and caller variables to the enclosing scopes and marks activity COMPLETED.
func (engine *Engine) completeActivity(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) error {
	produced := maps.Clone(variables)
	if produced == nil {
		produced = map[string]any{}
	}
	if len(activity.Outputs()) > 0 {
		holder, err := engine.variableHolder(ctx, activity)
		if err != nil {
			return err
		}
		overlay := runtime.NewVariableHolder(holder, activity.Id, maps.Clone(variables))
		outputs, err := engine.evaluateMap(activity.Outputs(), overlay.Flatten())
		if err != nil {
			return err
		}
		maps.Copy(produced, outputs)
	}
	if err := engine.SetActivityVariables(ctx, activity, produced); err != nil {
		return err
	}
	if err := engine.changeState(ctx, activity, runtime.ActivityCompleted); err != nil {
		return err
	}
	if err := engine.disarmBoundaryTimers(ctx, activity); err != nil {
		return err
	}
	engine.metrics.ActivitiesCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String(bpmnotel.AttributeActivityType, string(activity.Type)),
		attribute.String(bpmnotel.AttributeProcessDefinitionKey, activity.DefinitionKey),
	))
	return nil
}

// failExecution hands a behavior error to the fail machinery and reports it to the caller.
func (engine *Engine) failExecution(ctx context.Context, activity *runtime.ActivityExecution, cause error) error {
	failure := runtime.FailureOf(cause.Error())
	if errors.Is(cause, ErrNoValidPath) {
		failure = runtime.FailureOf("No valid path")
	}
	executionErr := &ExecutionError{ActivityId: activity.Id, Err: cause}
	if err := engine.dispatch(ctx, FailActivityCommand{Ref: RefOf(activity), Failure: failure}); err != nil {
		return errors.Join(executionErr, err)
	}
	return executionErr
}

func (engine *Engine) handleFailActivity(ctx context.Context, cmd FailActivityCommand) error {
	activity, err := engine.loadActivity(ctx, cmd.Ref)
	if err != nil {
		return err
	}
	if activity.IsInTerminalState() {
		return nil
	}
	failable, ok := engine.behaviors.ResolveFailable(activity.Type)
	if !ok {
		return nil
	}
	if err := engine.SetActivityVariables(ctx, activity, cmd.Variables); err != nil {
		return err
	}
	failure := cmd.Failure
	if failure == nil {
		failure = runtime.FailureOf("Unknown failure")
	}
	unrecoverable, err := failable.Fail(ctx, activity, failure)
	if err != nil {
		return err
	}
	engine.metrics.ActivitiesFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(bpmnotel.AttributeActivityType, string(activity.Type)),
		attribute.String(bpmnotel.AttributeProcessDefinitionKey, activity.DefinitionKey),
	))
	engine.logger.Info("activity failed", "activity", activity.DefinitionId, "process", activity.ProcessId, "reason", failure.Reason, "unrecoverable", unrecoverable)
	if unrecoverable {
		return engine.dispatch(ctx, IncidentProcessCommand{ProcessId: activity.ProcessId})
	}
	return nil
}

func (engine *Engine) handleRetryActivity(ctx context.Context, cmd RetryActivityCommand) error {
	activity, err := engine.loadActivity(ctx, cmd.Ref)
	if err != nil {
		return err
	}
	if activity.IsInTerminalState() && activity.State != runtime.ActivityFailed {
		return nil
	}
	if activity.Process.IsInTerminalState() && !activity.IsAsync() {
		return nil
	}
	failable, ok := engine.behaviors.ResolveFailable(activity.Type)
	if !ok {
		return nil
	}
	engine.logger.Debug("retry activity", "activity", activity.DefinitionId, "process", activity.ProcessId, "retries", activity.Retries)
	return failable.Retry(ctx, activity)
}

// handleRetryActivities retries each activity on its own so one failing retry does not block the others.
func (engine *Engine) handleRetryActivities(ctx context.Context, cmd RetryActivitiesCommand) error {
	for _, a := range cmd.Activities {
		engine.dispatchAsync(ctx, RetryActivityCommand{Ref: RefById(a.Id)})
	}
	return nil
}

func (engine *Engine) handleCancelActivity(ctx context.Context, cmd CancelActivityCommand) error {
	activity, err := engine.loadActivity(ctx, cmd.Ref)
	if err != nil {
		return err
	}
	if activity.IsInTerminalState() {
		return nil
	}
	cancellable, ok := engine.behaviors.ResolveCancellable(activity.Type)
	if !ok {
		return nil
	}
	if err := cancellable.Cancel(ctx, activity); err != nil {
		return err
	}
	return engine.disarmBoundaryTimers(ctx, activity)
}

func (engine *Engine) handleCancelActivities(ctx context.Context, cmd CancelActivitiesCommand) error {
	for _, a := range cmd.Activities {
		engine.dispatchAsync(ctx, CancelActivityCommand{Ref: RefById(a.Id)})
	}
	return nil
}

func (engine *Engine) handleCancelAllActivities(ctx context.Context, cmd CancelAllActivitiesCommand) error {
	active, err := engine.persistence.FindActiveActivities(ctx, cmd.ProcessId)
	if err != nil {
		return err
	}
	active, err = engine.outermost(ctx, cmd.ProcessId, active)
	if err != nil {
		return err
	}
	commands := make([]any, 0, len(active))
	for _, a := range active {
		commands = append(commands, CancelActivityCommand{Ref: RefById(a.Id)})
	}
	return engine.dispatchAll(ctx, commands)
}

func (engine *Engine) handleTerminateActivity(ctx context.Context, cmd TerminateActivityCommand) error {
	activity, err := engine.loadActivity(ctx, cmd.Ref)
	if err != nil {
		return err
	}
	if activity.IsInTerminalState() {
		return nil
	}
	cancellable, ok := engine.behaviors.ResolveCancellable(activity.Type)
	if !ok {
		return nil
	}
	engine.logger.Debug("terminate activity", "activity", activity.DefinitionId, "process", activity.ProcessId)
	if err := cancellable.Terminate(ctx, activity, !cmd.WithoutInterruption); err != nil {
		return err
	}
	if err := engine.disarmBoundaryTimers(ctx, activity); err != nil {
		return err
	}
	if cmd.WithoutInterruption {
		// the flow continues as if the activity had ended without outgoing paths
		return engine.dispatch(ctx, HandleActivityCompletionCommand{Activity: activity})
	}
	return nil
}

// handleTerminateActivities returns once every activity is terminated, callers rely on them being gone afterwards.
func (engine *Engine) handleTerminateActivities(ctx context.Context, cmd TerminateActivitiesCommand) error {
	commands := make([]any, 0, len(cmd.Activities))
	for _, a := range cmd.Activities {
		commands = append(commands, TerminateActivityCommand{Ref: RefById(a.Id), WithoutInterruption: cmd.WithoutInterruption})
	}
	return engine.dispatchAll(ctx, commands)
}

// dispatchAll runs every command and joins their errors. Off the worker pool the commands
// run concurrently on it. A worker runs them in turn: waiting on futures queued behind
// itself in the same bounded pool could starve every worker.
func (engine *Engine) dispatchAll(ctx context.Context, commands []any) error {
	if onWorker(ctx) || len(commands) <= 1 {
		var errJoin error
		for _, cmd := range commands {
			errJoin = errors.Join(errJoin, engine.dispatch(ctx, cmd))
		}
		return errJoin
	}
	futures := make([]*Future, 0, len(commands))
	for _, cmd := range commands {
		futures = append(futures, engine.dispatchAsync(ctx, cmd))
	}
	return AllOf(futures...)
}

func (engine *Engine) handleTerminateAllActivities(ctx context.Context, cmd TerminateAllActivitiesCommand) error {
	active, err := engine.persistence.FindActiveActivities(ctx, cmd.ProcessId, cmd.DefinitionIds...)
	if err != nil {
		return err
	}
	active, err = engine.outermost(ctx, cmd.ProcessId, active)
	if err != nil {
		return err
	}
	return engine.dispatch(ctx, TerminateActivitiesCommand{Activities: active})
}

// outermost drops executions nested in a subprocess that is listed as well, the subprocess ends its own children.
func (engine *Engine) outermost(ctx context.Context, processId string, active []runtime.ActivityExecution) ([]runtime.ActivityExecution, error) {
	if len(active) <= 1 {
		return active, nil
	}
	process, err := engine.loadProcess(ctx, processId)
	if err != nil {
		return nil, err
	}
	listed := make(map[string]bool, len(active))
	for _, a := range active {
		listed[a.DefinitionId] = true
	}
	kept := make([]runtime.ActivityExecution, 0, len(active))
	for _, a := range active {
		scope, err := process.Definition.Scope(a.DefinitionId)
		if err != nil {
			return nil, err
		}
		if slices.ContainsFunc(scope[1:], func(id string) bool { return listed[id] }) {
			continue
		}
		kept = append(kept, a)
	}
	return kept, nil
}

func (engine *Engine) handleTriggerActivity(ctx context.Context, cmd TriggerActivityCommand) error {
	process, err := engine.loadProcess(ctx, cmd.Process.Id)
	if err != nil {
		return err
	}
	if process.IsInTerminalState() {
		return nil
	}
	triggerable, ok := engine.behaviors.ResolveTriggerable(cmd.Definition.Type)
	if !ok {
		engine.logger.Debug("activity not triggered, type has no trigger", "activity", cmd.Definition.Id, "type", cmd.Definition.Type, "process", process.Id)
		return nil
	}
	engine.logger.Debug("trigger activity", "activity", cmd.Definition.Id, "process", process.Id)
	return triggerable.Trigger(ctx, process, cmd.Definition)
}

// handleDeleteActivity drops an execution whose branch ended without it, such as a merged join arrival.
func (engine *Engine) handleDeleteActivity(ctx context.Context, cmd DeleteActivityCommand) error {
	activity, err := engine.loadActivity(ctx, cmd.Ref)
	if err != nil {
		return err
	}
	if skipProgress(activity) {
		engine.logger.Debug("activity not deleted", "activity", activity.DefinitionId, "state", activity.State, "process", activity.ProcessId)
		return nil
	}
	if err := engine.persistence.RemoveFromQueue(ctx, activity.Id); err != nil {
		return err
	}
	if err := engine.persistence.DeleteActivity(ctx, activity.Id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// triggerActive completes every waiting execution of definition in process.
func (engine *Engine) triggerActive(ctx context.Context, process *runtime.Process, definition *model.ActivityDefinition) error {
	waiting, err := engine.persistence.FindActiveActivities(ctx, process.Id, definition.Id)
	if err != nil {
		return err
	}
	for _, a := range waiting {
		engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(a.Id)})
	}
	return nil
}
