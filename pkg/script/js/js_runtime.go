package js

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"github.com/pbinitiative/zenorchestrator/pkg/script"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

type JsRuntime struct {
	pool *script.RunnerPool[*JsRunner]
}

var _ script.JsRuntime = &JsRuntime{}

func NewJsRuntime(ctx context.Context, maxVmPoolSize int, minVmPoolSize int) *JsRuntime {
	return &JsRuntime{
		pool: script.NewRunnerPool(ctx, newJsRunner, maxVmPoolSize, minVmPoolSize),
	}
}

// Evaluate runs expression as the body of a function whose parameters are the variables.
// Variables whose names are not JavaScript identifiers are not visible to the expression.
func (r *JsRuntime) Evaluate(expression string, variableContext map[string]any) (any, error) {
	runner := r.pool.Borrow()
	defer r.pool.Return(runner)
	return runner.evaluate(expression, variableContext)
}

type JsRunner struct {
	vm *goja.Runtime
}

func newJsRunner() *JsRunner {
	r := JsRunner{vm: goja.New()}
	return &r
}

func (r *JsRunner) evaluate(expression string, variableContext map[string]any) (any, error) {
	names := make([]string, 0, len(variableContext))
	for name := range variableContext {
		if identifier.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fn, err := r.vm.RunString(fmt.Sprintf("(function(%s) { return (%s); })", strings.Join(names, ", "), expression))
	if err != nil {
		return nil, fmt.Errorf("error compiling script \"%s\" : %w", expression, err)
	}
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("script \"%s\" did not compile into a function", expression)
	}
	args := make([]goja.Value, 0, len(names))
	for _, name := range names {
		args = append(args, r.vm.ToValue(variableContext[name]))
	}
	resp, err := callable(goja.Undefined(), args...)
	if err != nil {
		return nil, fmt.Errorf("error running script \"%s\" : %w", expression, err)
	}
	return resp.Export(), nil
}
