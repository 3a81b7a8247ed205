package runtime

import (
	"testing"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variable(t *testing.T, executionId string, executionDefinitionId string, key string, value any) Variable {
	v, err := NewVariable(key, value)
	require.NoError(t, err)
	v.ProcessId = "p-1"
	v.ExecutionId = executionId
	v.ExecutionDefinitionId = executionDefinitionId
	return v
}

func TestScopedVariableHolderPrefersNearestScope(t *testing.T) {
	// given
	variables := []Variable{
		variable(t, "", "def", "amount", 10),
		variable(t, "", "def", "customer", "ACME"),
		variable(t, "exec-sub", "sub", "amount", 20),
		variable(t, "exec-other", "other", "amount", 30),
	}

	// when
	holder, err := NewScopedVariableHolder(variables, []string{"task", "sub", "def"})

	// then
	require.NoError(t, err)
	amount, ok := holder.GetVariable("amount")
	assert.True(t, ok)
	assert.Equal(t, float64(20), amount)
	customer, _ := holder.GetVariable("customer")
	assert.Equal(t, "ACME", customer)
	assert.Equal(t, map[string]any{"amount": float64(20), "customer": "ACME"}, holder.Flatten())
}

func TestEvaluateMappings(t *testing.T) {
	holder := NewVariableHolder(nil, "def", map[string]any{"a": 1, "b": 2, "c": 3})
	mappings := []model.VariableMapping{
		{Source: "a", Target: "x"},
		{SourceExpression: "=b", Target: "y"},
		{Variables: []string{"c", "missing"}},
	}

	res, err := holder.EvaluateMappings(mappings, func(expression string, variableContext map[string]any) (any, error) {
		return variableContext["b"], nil
	})

	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1, "y": 2, "c": 3}, res)
}

func TestVariableTypes(t *testing.T) {
	v, err := NewVariable("flag", true)
	assert.NoError(t, err)
	assert.Equal(t, "boolean", v.Type)
	assert.Equal(t, "true", v.Value)

	v, err = NewVariable("items", []any{"a"})
	assert.NoError(t, err)
	assert.Equal(t, "array", v.Type)
	value, err := v.GetValue()
	assert.NoError(t, err)
	assert.Equal(t, []any{"a"}, value)
}
