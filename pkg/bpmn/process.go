package bpmn

import (
	"context"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	bpmnotel "github.com/pbinitiative/zenorchestrator/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func (engine *Engine) resolveStartDefinition(ctx context.Context, cmd StartProcessCommand) (*model.ProcessDefinition, error) {
	switch {
	case cmd.DefinitionId != "":
		return engine.loadDefinition(ctx, cmd.DefinitionId)
	case cmd.Key != "" && cmd.Version != nil:
		definition, err := engine.persistence.FindDefinitionByKeyAndVersion(ctx, cmd.Key, *cmd.Version)
		if err != nil {
			return nil, notFound(err, ErrDefinitionNotFound, "failed to find process definition %s version %d", cmd.Key, *cmd.Version)
		}
		return engine.loadDefinition(ctx, definition.Id)
	case cmd.Key != "":
		definition, err := engine.persistence.FindLatestDefinitionByKey(ctx, cmd.Key)
		if err != nil {
			return nil, notFound(err, ErrDefinitionNotFound, "failed to find process definition %s", cmd.Key)
		}
		return engine.loadDefinition(ctx, definition.Id)
	}
	return nil, fmt.Errorf("%w: process definition key or id is required", ErrIllegalArgument)
}

func (engine *Engine) handleStartProcess(ctx context.Context, cmd StartProcessCommand) (*runtime.Process, error) {
	definition, err := engine.resolveStartDefinition(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if definition.Suspended {
		return nil, fmt.Errorf("%w: %s version %d", ErrDefinitionSuspended, definition.Key, definition.Version)
	}
	now := time.Now()
	process := &runtime.Process{
		Id:            cmd.ProcessId,
		RootProcessId: cmd.RootProcessId,
		ParentId:      cmd.ParentId,
		BusinessKey:   cmd.BusinessKey,
		State:         runtime.ProcessActive,
		DefinitionId:  definition.Id,
		Definition:    definition,
		CreatedAt:     now,
		UpdatedAt:     now,
		StartedAt:     now,
	}
	if process.Id == "" {
		process.Id = engine.persistence.GenerateId()
	}
	if process.RootProcessId == "" {
		process.RootProcessId = process.Id
	}
	if err := engine.persistence.SaveProcess(ctx, *process); err != nil {
		return nil, fmt.Errorf("failed to save process of definition %s: %w", definition.Key, err)
	}
	if err := engine.SetProcessVariables(ctx, process, cmd.Variables); err != nil {
		return nil, err
	}
	if err := engine.dispatch(ctx, RunProcessCommand{Process: process, StartActivityId: cmd.StartActivityId}); err != nil {
		return nil, err
	}
	return process, nil
}

func (engine *Engine) handleRunProcess(ctx context.Context, cmd RunProcessCommand) error {
	process := cmd.Process
	definition := process.Definition
	var start *model.ActivityDefinition
	if cmd.StartActivityId != "" {
		var ok bool
		start, ok = definition.GetActivityById(cmd.StartActivityId)
		if !ok {
			return fmt.Errorf("%w: activity %s of definition %s", model.ErrStartEventNotFound, cmd.StartActivityId, definition.Key)
		}
	} else {
		var err error
		start, err = definition.GetStartActivity()
		if err != nil {
			return err
		}
	}
	attributes := metric.WithAttributes(attribute.String(bpmnotel.AttributeProcessDefinitionKey, definition.Key))
	engine.metrics.ProcessesStarted.Add(ctx, 1, attributes)
	engine.metrics.ProcessesRunning.Add(ctx, 1, attributes)
	engine.logger.Debug("run process", "process", process.Id, "definition", definition.Key, "version", definition.Version)
	return engine.dispatch(ctx, RunActivityCommand{Definition: start, Process: process})
}

// handleCompleteProcess completes an active process once nothing runs in it anymore.
// A child process then completes its call activity.
func (engine *Engine) handleCompleteProcess(ctx context.Context, cmd CompleteProcessCommand) error {
	process, err := engine.loadProcess(ctx, cmd.ProcessId)
	if err != nil {
		return err
	}
	if process.State != runtime.ProcessActive {
		return nil
	}
	done, err := engine.persistence.IsAllCompleted(ctx, process.Id)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	if err := engine.endProcess(ctx, process, runtime.ProcessCompleted); err != nil {
		return err
	}
	if process.IsCallActivity() {
		engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(process.Id)})
	}
	return nil
}

func (engine *Engine) endProcess(ctx context.Context, process *runtime.Process, state runtime.ProcessState) error {
	if err := engine.changeProcessState(ctx, process, state); err != nil {
		return err
	}
	attributes := metric.WithAttributes(attribute.String(bpmnotel.AttributeProcessDefinitionKey, process.Definition.Key))
	engine.metrics.ProcessesEnded.Add(ctx, 1, attributes)
	engine.metrics.ProcessesRunning.Add(ctx, -1, attributes)
	engine.logger.Debug("process ended", "process", process.Id, "state", state)
	return nil
}

// handleIncidentProcess marks the process as needing attention. A child process fails its call activity.
func (engine *Engine) handleIncidentProcess(ctx context.Context, cmd IncidentProcessCommand) error {
	process, err := engine.loadProcess(ctx, cmd.ProcessId)
	if err != nil {
		return err
	}
	if process.State == runtime.ProcessIncident || process.IsInTerminalState() {
		return nil
	}
	if err := engine.changeProcessState(ctx, process, runtime.ProcessIncident); err != nil {
		return err
	}
	engine.metrics.IncidentsRaised.Add(ctx, 1, metric.WithAttributes(attribute.String(bpmnotel.AttributeProcessDefinitionKey, process.Definition.Key)))
	engine.logger.Warn("process incident", "process", process.Id, "definition", process.Definition.Key)
	if process.IsCallActivity() {
		return engine.dispatch(ctx, FailActivityCommand{Ref: RefById(process.Id), Failure: runtime.FailureOf("Process Incident")})
	}
	return nil
}

// handleResolveProcessIncident reactivates a process without failed activities. A child process
// also reactivates its call activity and resolves the incident of the parent.
func (engine *Engine) handleResolveProcessIncident(ctx context.Context, cmd ResolveProcessIncidentCommand) error {
	process, err := engine.loadProcess(ctx, cmd.ProcessId)
	if err != nil {
		return err
	}
	if process.State != runtime.ProcessIncident {
		return nil
	}
	failed, err := engine.persistence.IsAnyFailed(ctx, process.Id)
	if err != nil {
		return err
	}
	if failed {
		return nil
	}
	if err := engine.changeProcessState(ctx, process, runtime.ProcessActive); err != nil {
		return err
	}
	engine.logger.Info("process incident resolved", "process", process.Id)
	if !process.IsCallActivity() {
		return nil
	}
	callActivity, err := engine.loadActivity(ctx, RefById(process.Id))
	if err != nil {
		return err
	}
	if callActivity.State == runtime.ActivityFailed {
		callActivity.Failure = nil
		if err := engine.changeState(ctx, callActivity, runtime.ActivityActive); err != nil {
			return err
		}
	}
	return engine.dispatch(ctx, ResolveProcessIncidentCommand{ProcessId: process.ParentId})
}

func (engine *Engine) handleTerminateProcess(ctx context.Context, cmd TerminateProcessCommand) error {
	process, err := engine.loadProcess(ctx, cmd.ProcessId)
	if err != nil {
		return err
	}
	if process.IsInTerminalState() {
		return nil
	}
	if err := engine.dispatch(ctx, TerminateAllActivitiesCommand{ProcessId: process.Id}); err != nil {
		return err
	}
	return engine.endProcess(ctx, process, runtime.ProcessTerminated)
}

func (engine *Engine) handleCancelProcess(ctx context.Context, cmd CancelProcessCommand) error {
	process, err := engine.loadProcess(ctx, cmd.ProcessId)
	if err != nil {
		return err
	}
	if process.IsInTerminalState() {
		return nil
	}
	if err := engine.dispatch(ctx, CancelAllActivitiesCommand{ProcessId: process.Id}); err != nil {
		return err
	}
	return engine.endProcess(ctx, process, runtime.ProcessCanceled)
}

// handleDeleteProcess removes a finished process with everything that ran in it.
func (engine *Engine) handleDeleteProcess(ctx context.Context, cmd DeleteProcessCommand) error {
	process, err := engine.loadProcess(ctx, cmd.ProcessId)
	if err != nil {
		return err
	}
	if !process.IsInTerminalState() {
		return fmt.Errorf("%w: process %s is %s", ErrIllegalArgument, process.Id, process.State)
	}
	if err := engine.persistence.DeleteProcess(ctx, process.Id); err != nil {
		return notFound(err, ErrProcessNotFound, "failed to delete process %s", process.Id)
	}
	return nil
}

func (engine *Engine) handleSuspendDefinition(ctx context.Context, cmd SuspendDefinitionCommand) error {
	if cmd.Id != "" {
		if err := engine.persistence.SetDefinitionSuspendedById(ctx, cmd.Id, cmd.Suspended); err != nil {
			return notFound(err, ErrDefinitionNotFound, "failed to change process definition %s", cmd.Id)
		}
		engine.definitions.Remove(cmd.Id)
		return nil
	}
	if cmd.Key == "" {
		return fmt.Errorf("%w: process definition key or id is required", ErrIllegalArgument)
	}
	changed, err := engine.persistence.SetDefinitionSuspendedByKey(ctx, cmd.Key, cmd.Suspended)
	if err != nil {
		return err
	}
	if changed == 0 {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, cmd.Key)
	}
	engine.definitions.Purge()
	return nil
}
