package bpmn

import (
	"fmt"
	"strconv"
	"strings"
)

// isExpression reports whether value is evaluated rather than taken literally:
// a leading "=" marks FEEL, "${...}" marks JavaScript.
func isExpression(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "=") || (strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}"))
}

func (engine *Engine) evaluateExpression(expression string, variableContext map[string]any) (any, error) {
	expression = strings.TrimSpace(expression)
	switch {
	case strings.HasPrefix(expression, "="):
		res, err := engine.feel.Evaluate(strings.TrimPrefix(expression, "="), variableContext)
		if err != nil {
			return nil, &ExpressionEvaluationError{Msg: fmt.Sprintf("failed to evaluate expression %s", expression), Err: err}
		}
		return res, nil
	case strings.HasPrefix(expression, "${") && strings.HasSuffix(expression, "}"):
		res, err := engine.js.Evaluate(expression[2:len(expression)-1], variableContext)
		if err != nil {
			return nil, &ExpressionEvaluationError{Msg: fmt.Sprintf("failed to evaluate expression %s", expression), Err: err}
		}
		return res, nil
	}
	return expression, nil
}

// evaluateValue evaluates string expressions, walking into maps and slices. Other values are literals.
func (engine *Engine) evaluateValue(value any, variableContext map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if !isExpression(v) {
			return v, nil
		}
		return engine.evaluateExpression(v, variableContext)
	case map[string]any:
		res := make(map[string]any, len(v))
		for key, item := range v {
			evaluated, err := engine.evaluateValue(item, variableContext)
			if err != nil {
				return nil, err
			}
			res[key] = evaluated
		}
		return res, nil
	case []any:
		res := make([]any, 0, len(v))
		for _, item := range v {
			evaluated, err := engine.evaluateValue(item, variableContext)
			if err != nil {
				return nil, err
			}
			res = append(res, evaluated)
		}
		return res, nil
	}
	return value, nil
}

// evaluateCondition evaluates expression and requires a boolean result.
func (engine *Engine) evaluateCondition(expression string, variableContext map[string]any) (bool, error) {
	value, err := engine.evaluateValue(expression, variableContext)
	if err != nil {
		return false, err
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b, nil
		}
	}
	return false, &ExpressionEvaluationError{Msg: fmt.Sprintf("condition %s evaluated to %v which is not a boolean", expression, value)}
}
