package appcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionKeyIsKeptAcrossChain(t *testing.T) {
	ctx := WithExecutionKey(context.Background(), 42)

	valFromCtx, found := GetExecutionContext(ctx)
	assert.True(t, found)
	assert.Equal(t, int64(42), valFromCtx)

	ctx = WithExecutionKey(ctx, 43)
	valFromCtx, _ = GetExecutionContext(ctx)
	assert.Equal(t, int64(42), valFromCtx)

	valFromCtx, found = GetExecutionContext(context.Background())
	assert.False(t, found)
	assert.Equal(t, int64(0), valFromCtx)
}
