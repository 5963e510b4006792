package ctxkeys

import (
	"context"

	"github.com/google/uuid"
)

// TraceIDKey 链路ID在 context 中的键
type TraceIDKey struct{}

// WithTraceID 若 context 中没有链路ID则生成一个
func WithTraceID(ctx context.Context) (context.Context, string) {
	if id := TraceID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return context.WithValue(ctx, TraceIDKey{}, id), id
}

// TraceID 读取链路ID
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(TraceIDKey{}).(string); ok {
		return v
	}
	return ""
}
