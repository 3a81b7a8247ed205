package bpmn

import (
	"context"
	"fmt"
	"slices"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

// ToMap decodes stored variables. Later entries win on duplicate keys.
func ToMap(variables []runtime.Variable) (map[string]any, error) {
	res := make(map[string]any, len(variables))
	for _, v := range variables {
		value, err := v.GetValue()
		if err != nil {
			return nil, err
		}
		res[v.Key] = value
	}
	return res, nil
}

func toVariables(processId string, variables map[string]any) ([]runtime.Variable, error) {
	res := make([]runtime.Variable, 0, len(variables))
	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		v, err := runtime.NewVariable(key, variables[key])
		if err != nil {
			return nil, err
		}
		v.ProcessId = processId
		res = append(res, v)
	}
	return res, nil
}

// variableHolder arranges the variables visible to activity along its scope chain.
// Local variables of other executions of the same definition are not visible.
func (engine *Engine) variableHolder(ctx context.Context, activity *runtime.ActivityExecution) (*runtime.VariableHolder, error) {
	scope, err := activity.Scope()
	if err != nil {
		return nil, err
	}
	variables, err := engine.persistence.FindVariablesInScope(ctx, activity.ProcessId, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables of activity %s: %w", activity.Id, err)
	}
	variables = slices.DeleteFunc(variables, func(v runtime.Variable) bool {
		return v.ExecutionId != "" && v.ExecutionDefinitionId == activity.DefinitionId && v.ExecutionId != activity.Id
	})
	return runtime.NewScopedVariableHolder(variables, scope)
}

// ScopedVariables returns the variables visible to activity, inner scopes shadowing outer ones.
func (engine *Engine) ScopedVariables(ctx context.Context, activity *runtime.ActivityExecution) (map[string]any, error) {
	holder, err := engine.variableHolder(ctx, activity)
	if err != nil {
		return nil, err
	}
	return holder.Flatten(), nil
}

// ProcessVariables returns the process scoped variables of processId.
func (engine *Engine) ProcessVariables(ctx context.Context, processId string) (map[string]any, error) {
	variables, err := engine.persistence.FindVariablesInProcess(ctx, processId)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables of process %s: %w", processId, err)
	}
	return ToMap(slices.DeleteFunc(variables, func(v runtime.Variable) bool { return v.ExecutionId != "" }))
}

// Evaluate resolves the expressions in raw against the variables visible to activity.
func (engine *Engine) Evaluate(ctx context.Context, activity *runtime.ActivityExecution, raw map[string]any) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	hasExpression := false
	for _, v := range raw {
		if s, ok := v.(string); ok && isExpression(s) {
			hasExpression = true
			break
		}
		if _, ok := v.(map[string]any); ok {
			hasExpression = true
			break
		}
	}
	variableContext := map[string]any{}
	if hasExpression {
		var err error
		variableContext, err = engine.ScopedVariables(ctx, activity)
		if err != nil {
			return nil, err
		}
	}
	return engine.evaluateMap(raw, variableContext)
}

func (engine *Engine) evaluateMap(raw map[string]any, variableContext map[string]any) (map[string]any, error) {
	res := make(map[string]any, len(raw))
	for key, value := range raw {
		evaluated, err := engine.evaluateValue(value, variableContext)
		if err != nil {
			return nil, err
		}
		res[key] = evaluated
	}
	return res, nil
}

// SetProcessVariables merges variables into the process scope.
func (engine *Engine) SetProcessVariables(ctx context.Context, process *runtime.Process, variables map[string]any) error {
	if len(variables) == 0 {
		return nil
	}
	toSave, err := toVariables(process.Id, variables)
	if err != nil {
		return err
	}
	if _, err := engine.persistence.SaveVariables(ctx, toSave); err != nil {
		return fmt.Errorf("failed to save variables of process %s: %w", process.Id, err)
	}
	engine.variablesChanged(ctx, process)
	return nil
}

// SetVariablesLocal stores variables on the execution itself.
func (engine *Engine) SetVariablesLocal(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) error {
	if len(variables) == 0 {
		return nil
	}
	toSave, err := toVariables(activity.ProcessId, variables)
	if err != nil {
		return err
	}
	for i := range toSave {
		toSave[i].ExecutionId = activity.Id
		toSave[i].ExecutionDefinitionId = activity.DefinitionId
	}
	if _, err := engine.persistence.SaveVariables(ctx, toSave); err != nil {
		return fmt.Errorf("failed to save local variables of activity %s: %w", activity.Id, err)
	}
	return nil
}

// SetActivityVariables hands variables produced by activity to its surroundings.
// A key already defined by an enclosing scope is updated there, everything else lands in process scope.
func (engine *Engine) SetActivityVariables(ctx context.Context, activity *runtime.ActivityExecution, variables map[string]any) error {
	if len(variables) == 0 {
		return nil
	}
	scope, err := activity.Scope()
	if err != nil {
		return err
	}
	enclosing := scope[1 : len(scope)-1]
	existing := map[string]runtime.Variable{}
	if len(enclosing) > 0 {
		stored, err := engine.persistence.FindVariablesInScope(ctx, activity.ProcessId, enclosing)
		if err != nil {
			return fmt.Errorf("failed to load variables of activity %s: %w", activity.Id, err)
		}
		// innermost scope first so the nearest definition of a key wins
		for _, scopeId := range enclosing {
			for _, v := range stored {
				if v.ExecutionId == "" || v.ExecutionDefinitionId != scopeId {
					continue
				}
				if _, ok := existing[v.Key]; !ok {
					existing[v.Key] = v
				}
			}
		}
	}
	toSave, err := toVariables(activity.ProcessId, variables)
	if err != nil {
		return err
	}
	for i := range toSave {
		if v, ok := existing[toSave[i].Key]; ok {
			toSave[i].ExecutionId = v.ExecutionId
			toSave[i].ExecutionDefinitionId = v.ExecutionDefinitionId
		}
	}
	if _, err := engine.persistence.SaveVariables(ctx, toSave); err != nil {
		return fmt.Errorf("failed to save variables of activity %s: %w", activity.Id, err)
	}
	engine.variablesChanged(ctx, activity.Process)
	return nil
}

// variablesChanged wakes up conditional catch events of process.
func (engine *Engine) variablesChanged(ctx context.Context, process *runtime.Process) {
	if process == nil || process.Definition == nil || !hasConditionalEvents(process.Definition) {
		return
	}
	engine.dispatchAsync(ctx, CorrelateConditionsCommand{ProcessId: process.Id})
}

func hasConditionalEvents(definition *model.ProcessDefinition) bool {
	for _, a := range definition.Activities {
		if a.Type == model.ActivityTypeIntermediateCatchEvent && a.Condition != nil {
			return true
		}
	}
	return false
}

func (engine *Engine) handleSetVariables(ctx context.Context, cmd SetVariablesCommand) error {
	if cmd.ActivityId != "" {
		activity, err := engine.loadActivity(ctx, RefById(cmd.ActivityId))
		if err != nil {
			return err
		}
		if cmd.Local {
			return engine.SetVariablesLocal(ctx, activity, cmd.Variables)
		}
		return engine.SetActivityVariables(ctx, activity, cmd.Variables)
	}
	process, err := engine.loadProcess(ctx, cmd.ProcessId)
	if err != nil {
		return err
	}
	return engine.SetProcessVariables(ctx, process, cmd.Variables)
}
