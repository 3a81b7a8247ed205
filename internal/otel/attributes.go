package otel

import "context"

// TransferHeaderKey is the context key of a configured transfer header.
type TransferHeaderKey string

// TransferHeader returns the value of header copied into ctx by the REST middleware.
func TransferHeader(ctx context.Context, header string) string {
	v, _ := ctx.Value(TransferHeaderKey(header)).(string)
	return v
}
