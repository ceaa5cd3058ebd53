package dispatch

import (
	"context"
	"strings"
)

type invocationContextKey struct{}

// Invocation carries caller metadata for logging.
type Invocation struct {
	Source    string
	RequestID string
}

// WithInvocation stores invocation metadata in ctx.
func WithInvocation(ctx context.Context, meta Invocation) context.Context {
	return context.WithValue(ctx, invocationContextKey{}, meta)
}

// InvocationFromContext reads invocation metadata from ctx.
func InvocationFromContext(ctx context.Context) Invocation {
	meta, ok := ctx.Value(invocationContextKey{}).(Invocation)
	if !ok {
		return Invocation{}
	}
	meta.Source = strings.TrimSpace(meta.Source)
	meta.RequestID = strings.TrimSpace(meta.RequestID)
	return meta
}
