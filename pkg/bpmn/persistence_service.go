package bpmn

import (
	"context"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

// loadDefinition returns the definition with id, served from the LRU cache when possible.
// Cached definitions are shared and must not be modified.
func (engine *Engine) loadDefinition(ctx context.Context, id string) (*model.ProcessDefinition, error) {
	if definition, ok := engine.definitions.Get(id); ok {
		return definition, nil
	}
	definition, err := engine.persistence.FindDefinitionById(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrDefinitionNotFound, "failed to load process definition %s", id)
	}
	definition.Index()
	engine.definitions.Add(id, &definition)
	return &definition, nil
}

func (engine *Engine) loadProcess(ctx context.Context, id string) (*runtime.Process, error) {
	process, err := engine.persistence.FindProcessById(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrProcessNotFound, "failed to load process %s", id)
	}
	definition, err := engine.loadDefinition(ctx, process.DefinitionId)
	if err != nil {
		return nil, err
	}
	process.Definition = definition
	return &process, nil
}

// hydrate attaches the process and the activity definition to a stored execution.
func (engine *Engine) hydrate(ctx context.Context, activity runtime.ActivityExecution, process *runtime.Process) (*runtime.ActivityExecution, error) {
	var err error
	if process == nil || process.Id != activity.ProcessId || process.Definition == nil {
		process, err = engine.loadProcess(ctx, activity.ProcessId)
		if err != nil {
			return nil, err
		}
	}
	definition, ok := process.Definition.GetActivityById(activity.DefinitionId)
	if !ok {
		return nil, fmt.Errorf("%w: activity %s is not part of definition %s", ErrActivityNotFound, activity.DefinitionId, process.Definition.Key)
	}
	activity.Process = process
	activity.Definition = definition
	return &activity, nil
}

func (engine *Engine) loadActivity(ctx context.Context, ref ActivityRef) (*runtime.ActivityExecution, error) {
	switch {
	case ref.Activity != nil:
		if ref.Activity.Process != nil && ref.Activity.Definition != nil {
			return ref.Activity, nil
		}
		return engine.hydrate(ctx, *ref.Activity, ref.Activity.Process)
	case ref.ActivityId != "":
		activity, err := engine.persistence.FindActivityById(ctx, ref.ActivityId)
		if err != nil {
			return nil, notFound(err, ErrActivityNotFound, "failed to load activity %s", ref.ActivityId)
		}
		return engine.hydrate(ctx, activity, nil)
	case ref.ProcessId != "" && ref.DefinitionId != "":
		activity, err := engine.persistence.FindActivityByDefinitionId(ctx, ref.ProcessId, ref.DefinitionId)
		if err != nil {
			return nil, notFound(err, ErrActivityNotFound, "failed to load activity %s of process %s", ref.DefinitionId, ref.ProcessId)
		}
		return engine.hydrate(ctx, activity, nil)
	}
	return nil, fmt.Errorf("%w: activity reference is empty", ErrIllegalArgument)
}

func (engine *Engine) loadActivities(ctx context.Context, activities []runtime.ActivityExecution, process *runtime.Process) ([]*runtime.ActivityExecution, error) {
	res := make([]*runtime.ActivityExecution, 0, len(activities))
	for _, a := range activities {
		hydrated, err := engine.hydrate(ctx, a, process)
		if err != nil {
			return nil, err
		}
		res = append(res, hydrated)
	}
	return res, nil
}

// newActivity creates an unsaved execution of definition inside process.
func (engine *Engine) newActivity(process *runtime.Process, definition *model.ActivityDefinition) *runtime.ActivityExecution {
	return &runtime.ActivityExecution{
		Id:            engine.persistence.GenerateId(),
		DefinitionId:  definition.Id,
		ProcessId:     process.Id,
		Topic:         definition.Topic(),
		DefinitionKey: process.Definition.Key,
		Type:          definition.Type,
		State:         runtime.ActivityActive,
		Async:         process.Definition.IsAsync(definition.Id),
		CreatedAt:     time.Now(),
		Process:       process,
		Definition:    definition,
	}
}

func (engine *Engine) saveActivity(ctx context.Context, activity *runtime.ActivityExecution) error {
	if err := engine.persistence.SaveActivity(ctx, *activity); err != nil {
		return fmt.Errorf("failed to save activity %s of process %s: %w", activity.DefinitionId, activity.ProcessId, err)
	}
	return nil
}

// changeState moves the execution into state and saves it.
func (engine *Engine) changeState(ctx context.Context, activity *runtime.ActivityExecution, state runtime.ActivityState) error {
	now := time.Now()
	activity.State = state
	if state == runtime.ActivityActive && activity.StartedAt == nil {
		activity.StartedAt = &now
	}
	if state.IsTerminal() {
		activity.CompletedAt = &now
	} else {
		activity.CompletedAt = nil
	}
	return engine.saveActivity(ctx, activity)
}

func (engine *Engine) changeProcessState(ctx context.Context, process *runtime.Process, state runtime.ProcessState) error {
	updated, err := engine.persistence.UpdateProcessState(ctx, process.Id, state)
	if err != nil {
		return notFound(err, ErrProcessNotFound, "failed to change state of process %s to %s", process.Id, state)
	}
	updated.Definition = process.Definition
	*process = updated
	return nil
}
