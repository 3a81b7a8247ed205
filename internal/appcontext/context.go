package appcontext

import (
	"context"
)

type EXECUTION_CONTEXT string

var (
	ExecutionKey EXECUTION_CONTEXT = "executionKey"
)

// WithExecutionKey marks ctx as part of one command chain. An existing key is kept
// so that async commands spawned by a chain log under the key of their origin.
func WithExecutionKey(ctx context.Context, key int64) context.Context {
	if _, ok := GetExecutionContext(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, ExecutionKey, key)
}

func GetExecutionContext(ctx context.Context) (int64, bool) {
	executionContextKey := ctx.Value(ExecutionKey)
	if executionContextKey == nil {
		return 0, false
	}
	key, ok := executionContextKey.(int64)
	return key, ok
}
