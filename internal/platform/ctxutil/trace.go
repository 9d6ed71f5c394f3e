package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// EnsureTraceData attaches fresh ids when the context carries none, so every
// request and worker task is correlatable even without inbound headers.
func EnsureTraceData(ctx context.Context) context.Context {
	if GetTraceData(ctx) != nil {
		return ctx
	}
	return WithTraceData(ctx, &TraceData{
		TraceID:   uuid.NewString(),
		RequestID: uuid.NewString(),
	})
}
