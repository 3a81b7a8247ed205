package runtime

import (
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
)

// VariableHolder is one level of a scope chain. Lookups start at the innermost
// holder and fall back to the parents.
type VariableHolder struct {
	parent         *VariableHolder
	scopeId        string
	localVariables map[string]any
}

func NewVariableHolder(parent *VariableHolder, scopeId string, localVariables map[string]any) *VariableHolder {
	if localVariables == nil {
		localVariables = make(map[string]any)
	}
	return &VariableHolder{
		parent:         parent,
		scopeId:        scopeId,
		localVariables: localVariables,
	}
}

// NewScopedVariableHolder arranges variables along scope, which is ordered from the
// innermost id out to the process definition id. Process scoped variables land on
// the outermost level, variables of executions outside the scope are ignored.
// The innermost holder is returned.
func NewScopedVariableHolder(variables []Variable, scope []string) (*VariableHolder, error) {
	levels := make(map[string]map[string]any, len(scope))
	for _, id := range scope {
		levels[id] = make(map[string]any)
	}
	outermost := ""
	if len(scope) > 0 {
		outermost = scope[len(scope)-1]
	}
	for _, v := range variables {
		level := v.ExecutionDefinitionId
		if v.ExecutionId == "" {
			level = outermost
		}
		target, ok := levels[level]
		if !ok {
			continue
		}
		value, err := v.GetValue()
		if err != nil {
			return nil, err
		}
		target[v.Key] = value
	}
	var holder *VariableHolder
	for i := len(scope) - 1; i >= 0; i-- {
		holder = NewVariableHolder(holder, scope[i], levels[scope[i]])
	}
	if holder == nil {
		holder = NewVariableHolder(nil, "", nil)
	}
	return holder, nil
}

func (vh *VariableHolder) Parent() *VariableHolder {
	return vh.parent
}

func (vh *VariableHolder) ScopeId() string {
	return vh.scopeId
}

func (vh *VariableHolder) LocalVariables() map[string]any {
	return vh.localVariables
}

// GetVariable returns the value from the nearest scope that defines key.
func (vh *VariableHolder) GetVariable(key string) (any, bool) {
	for h := vh; h != nil; h = h.parent {
		if v, ok := h.localVariables[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func (vh *VariableHolder) SetLocalVariable(key string, val any) {
	vh.localVariables[key] = val
}

func (vh *VariableHolder) SetLocalVariables(variables map[string]any) {
	for k, v := range variables {
		vh.localVariables[k] = v
	}
}

// Flatten merges the chain into one map where inner scopes shadow outer ones.
func (vh *VariableHolder) Flatten() map[string]any {
	chain := make([]*VariableHolder, 0)
	for h := vh; h != nil; h = h.parent {
		chain = append(chain, h)
	}
	res := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].localVariables {
			res[k] = v
		}
	}
	return res
}

// EvaluateMappings projects variables through mappings. A mapping either copies Source,
// evaluates SourceExpression, or, when only Variables is set, copies the listed keys.
// An empty Target falls back to Source.
func (vh *VariableHolder) EvaluateMappings(mappings []model.VariableMapping, evaluateExpression func(expression string, variableContext map[string]any) (any, error)) (map[string]any, error) {
	context := vh.Flatten()
	res := make(map[string]any, len(mappings))
	for _, mapping := range mappings {
		switch {
		case mapping.SourceExpression != "":
			value, err := evaluateExpression(mapping.SourceExpression, context)
			if err != nil {
				return nil, err
			}
			res[targetOf(mapping)] = value
		case mapping.Source != "":
			if value, ok := vh.GetVariable(mapping.Source); ok {
				res[targetOf(mapping)] = value
			}
		default:
			for _, key := range mapping.Variables {
				if value, ok := vh.GetVariable(key); ok {
					res[key] = value
				}
			}
		}
	}
	return res, nil
}

func targetOf(mapping model.VariableMapping) string {
	if mapping.Target != "" {
		return mapping.Target
	}
	return mapping.Source
}
