package bpmn

import (
	"context"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

// runNext creates an execution for each of next and runs it asynchronously.
// The executions are stored before anything runs, so a joining gateway sees
// arrivals that are on their way.
func (engine *Engine) runNext(ctx context.Context, process *runtime.Process, next []*model.ActivityDefinition) error {
	created := make([]*runtime.ActivityExecution, 0, len(next))
	for _, definition := range next {
		activity := engine.newActivity(process, definition)
		if err := engine.saveActivity(ctx, activity); err != nil {
			return err
		}
		created = append(created, activity)
	}
	for _, activity := range created {
		engine.dispatchAsync(ctx, RunActivityCommand{Ref: RefById(activity.Id)})
	}
	return nil
}

// handleActivityCompletion moves the flow on after an activity finished: into the
// next activities, back to the enclosing subprocess or to the end of the process.
func (engine *Engine) handleActivityCompletion(ctx context.Context, cmd HandleActivityCompletionCommand) error {
	activity, err := engine.loadActivity(ctx, RefOf(cmd.Activity))
	if err != nil {
		return err
	}
	process := activity.Process

	if len(cmd.Next) > 0 {
		if process.State == runtime.ProcessIncident {
			if err := engine.dispatch(ctx, ResolveProcessIncidentCommand{ProcessId: process.Id}); err != nil {
				return err
			}
		}
		return engine.runNext(ctx, process, cmd.Next)
	}

	switch activity.Type {
	case model.ActivityTypeErrorEndEvent:
		return nil
	case model.ActivityTypeTerminateEndEvent:
		return engine.terminateScope(ctx, activity)
	}

	if activity.HasParent() {
		parent, err := engine.persistence.FindActivityByDefinitionId(ctx, process.Id, activity.ParentDefinitionId())
		if err != nil {
			return notFound(err, ErrActivityNotFound, "failed to find parent %s of activity %s in process %s", activity.ParentDefinitionId(), activity.DefinitionId, process.Id)
		}
		engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(parent.Id)})
		return nil
	}
	engine.dispatchAsync(ctx, CompleteProcessCommand{ProcessId: process.Id})
	return nil
}

// terminateScope ends everything running in the scope of a terminate end event. Inside a
// subprocess the subprocess then completes, on the process level the process is terminated.
// An event subprocess is transparent here: its enclosing scope is the one that ends.
func (engine *Engine) terminateScope(ctx context.Context, activity *runtime.ActivityExecution) error {
	definition := activity.Process.Definition
	scopeId := activity.ParentDefinitionId()
	if parent, ok := definition.GetActivityById(scopeId); ok && parent.Type == model.ActivityTypeEventSubprocess {
		scopeId = parent.ParentId
	}
	if scopeId == "" {
		if err := engine.dispatch(ctx, TerminateAllActivitiesCommand{ProcessId: activity.ProcessId}); err != nil {
			return err
		}
		return engine.dispatch(ctx, TerminateProcessCommand{ProcessId: activity.ProcessId})
	}
	if err := engine.dispatch(ctx, TerminateAllActivitiesCommand{ProcessId: activity.ProcessId, DefinitionIds: definition.DescendantIds(scopeId)}); err != nil {
		return err
	}
	scope, err := engine.persistence.FindActivityByDefinitionId(ctx, activity.ProcessId, scopeId)
	if err != nil {
		return notFound(err, ErrActivityNotFound, "failed to find scope %s of activity %s in process %s", scopeId, activity.DefinitionId, activity.ProcessId)
	}
	engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(scope.Id)})
	return nil
}
