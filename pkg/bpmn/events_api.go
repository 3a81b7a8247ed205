package bpmn

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

// handleCorrelateMessage delivers a message to the single process identified by business key
// and/or correlation variables. Every activity of that process subscribed to the message is
// triggered. When no process waits, a definition with a matching message start event is started.
func (engine *Engine) handleCorrelateMessage(ctx context.Context, cmd CorrelateMessageCommand) (*runtime.Process, error) {
	if cmd.Message == "" {
		return nil, fmt.Errorf("%w: message name is required", ErrIllegalArgument)
	}
	candidates, err := engine.findCorrelationCandidates(ctx, cmd)
	if err != nil {
		return nil, err
	}
	active := make([]*runtime.Process, 0, len(candidates))
	terminal := 0
	for _, c := range candidates {
		process, err := engine.loadProcess(ctx, c.Id)
		if err != nil {
			return nil, err
		}
		if !process.Definition.HasMessage(cmd.Message) {
			continue
		}
		if process.IsInTerminalState() {
			terminal++
			continue
		}
		active = append(active, process)
	}
	switch {
	case len(active) > 1:
		return nil, fmt.Errorf("%w: message %s, business key %q", ErrAmbiguousCorrelation, cmd.Message, cmd.BusinessKey)
	case len(active) == 0:
		process, err := engine.startByMessage(ctx, cmd)
		if errors.Is(err, ErrProcessNotFound) && terminal > 0 {
			return nil, fmt.Errorf("%w: message %s correlates only with finished processes", ErrProcessNotActive, cmd.Message)
		}
		return process, err
	}

	process := active[0]
	if err := engine.SetProcessVariables(ctx, process, cmd.Variables); err != nil {
		return nil, err
	}
	for _, definition := range subscribers(process.Definition, cmd.Message) {
		engine.dispatchAsync(ctx, TriggerActivityCommand{Definition: definition, Process: process})
	}
	engine.logger.Debug("message correlated", "message", cmd.Message, "process", process.Id)
	return process, nil
}

func (engine *Engine) findCorrelationCandidates(ctx context.Context, cmd CorrelateMessageCommand) ([]runtime.Process, error) {
	var (
		candidates []runtime.Process
		err        error
	)
	switch {
	case cmd.BusinessKey != "" && len(cmd.CorrelationKeys) > 0:
		candidates, err = engine.persistence.FindProcessesByBusinessKeyAndVariables(ctx, cmd.BusinessKey, cmd.CorrelationKeys)
	case cmd.BusinessKey != "":
		candidates, err = engine.persistence.FindProcessesByBusinessKey(ctx, cmd.BusinessKey)
	case len(cmd.CorrelationKeys) > 0:
		candidates, err = engine.persistence.FindProcessesByVariables(ctx, cmd.CorrelationKeys)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find processes correlated with message %s: %w", cmd.Message, err)
	}
	return candidates, nil
}

// subscribers returns the activities of definition waiting for message. Top level
// message start events start new processes and are not part of it.
func subscribers(definition *model.ProcessDefinition, message string) []*model.ActivityDefinition {
	res := make([]*model.ActivityDefinition, 0)
	for i := range definition.Activities {
		a := &definition.Activities[i]
		if a.MessageReference() != message {
			continue
		}
		switch a.Type {
		case model.ActivityTypeReceiveTask, model.ActivityTypeMessageIntermediateCatchEvent, model.ActivityTypeMessageBoundaryEvent:
			res = append(res, a)
		case model.ActivityTypeMessageStartEvent:
			if a.ParentId != "" {
				res = append(res, a)
			}
		}
	}
	return res
}

// startByMessage starts the latest version of the one definition whose top level message start event listens to message.
func (engine *Engine) startByMessage(ctx context.Context, cmd CorrelateMessageCommand) (*runtime.Process, error) {
	definitions, err := engine.persistence.FindAllDefinitions(ctx, storage.Page{})
	if err != nil {
		return nil, fmt.Errorf("failed to load process definitions: %w", err)
	}
	latest := map[string]model.ProcessDefinition{}
	for _, d := range definitions {
		if current, ok := latest[d.Key]; !ok || current.Version < d.Version {
			latest[d.Key] = d
		}
	}
	var (
		target *model.ProcessDefinition
		start  *model.ActivityDefinition
	)
	for _, d := range latest {
		if d.Suspended {
			continue
		}
		if s, ok := d.MessageStartEvent(cmd.Message); ok {
			if target != nil {
				return nil, fmt.Errorf("%w: message %s starts more than one process definition", ErrAmbiguousCorrelation, cmd.Message)
			}
			target, start = &d, s
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: no process correlated with message %s", ErrProcessNotFound, cmd.Message)
	}
	return Execute[*runtime.Process](ctx, engine.dispatcher, StartProcessCommand{
		DefinitionId:    target.Id,
		BusinessKey:     cmd.BusinessKey,
		Variables:       cmd.Variables,
		StartActivityId: start.Id,
	})
}

// handleCorrelateConditions completes the waiting conditional catch events of a process whose condition holds.
func (engine *Engine) handleCorrelateConditions(ctx context.Context, cmd CorrelateConditionsCommand) error {
	process, err := engine.loadProcess(ctx, cmd.ProcessId)
	if err != nil {
		return err
	}
	if process.IsInTerminalState() {
		return nil
	}
	ids := make([]string, 0)
	for _, a := range process.Definition.Activities {
		if a.Type == model.ActivityTypeIntermediateCatchEvent && a.Condition != nil {
			ids = append(ids, a.Id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	waiting, err := engine.persistence.FindActiveActivities(ctx, process.Id, ids...)
	if err != nil {
		return err
	}
	activities, err := engine.loadActivities(ctx, waiting, process)
	if err != nil {
		return err
	}
	var errJoin error
	for _, activity := range activities {
		variables, err := engine.ScopedVariables(ctx, activity)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		satisfied, err := engine.evaluateCondition(activity.Definition.Condition.Expression, variables)
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		if satisfied {
			engine.dispatchAsync(ctx, CompleteActivityCommand{Ref: RefById(activity.Id)})
		}
	}
	return errJoin
}
