package feel

import (
	"encoding/json"
	"fmt"

	"github.com/pbinitiative/feel"
	"github.com/pbinitiative/zenorchestrator/pkg/script"
)

// FeelRuntime evaluates FEEL through the pure Go interpreter, which needs no vm pool.
type FeelRuntime struct {
}

var _ script.FeelRuntime = &FeelRuntime{}

func NewFeelRuntime() *FeelRuntime {
	return &FeelRuntime{}
}

func (r *FeelRuntime) UnaryTest(expression string, variableContext map[string]any) (bool, error) {
	res, err := r.Evaluate(expression, variableContext)
	if err != nil {
		return false, err
	}
	b, ok := res.(bool)
	if !ok {
		return false, fmt.Errorf("expression %s evaluated to %v, expected a boolean", expression, res)
	}
	return b, nil
}

func (r *FeelRuntime) Evaluate(expression string, variableContext map[string]any) (any, error) {
	res, err := feel.EvalStringWithScope(expression, variableContext)
	if err != nil {
		return nil, err
	}
	return normalize(res)
}

// normalize turns interpreter specific values (numbers, contexts) into plain JSON values.
func normalize(value any) (any, error) {
	switch value.(type) {
	case nil, bool, string, float64, int, int64:
		return value, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to convert expression result %v: %w", value, err)
	}
	var res any
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to convert expression result %v: %w", value, err)
	}
	return res, nil
}
