package script

// FeelRuntime evaluates FEEL expressions. Expressions are passed without the leading "=".
type FeelRuntime interface {
	UnaryTest(expression string, variableContext map[string]any) (bool, error)
	Evaluate(expression string, variableContext map[string]any) (any, error)
}

// JsRuntime evaluates a JavaScript expression with the variables bound as function parameters.
type JsRuntime interface {
	Evaluate(expression string, variableContext map[string]any) (any, error)
}
