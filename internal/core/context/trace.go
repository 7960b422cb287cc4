package context

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext correlates one request across logs, audit rows and spans.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace stores t on ctx.
func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, t)
}

// GetTrace returns the TraceContext of ctx, or nil.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetTraceID returns the trace id of ctx or "".
func GetTraceID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID
	}
	return ""
}

// GetRequestID returns the request id of ctx or "".
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext builds the ids for a request. A caller-supplied request id
// is kept. When ctx carries a sampled OpenTelemetry span its ids are reused
// so log lines join up with the exported trace.
func NewTraceContext(ctx context.Context, requestID string) *TraceContext {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	t := &TraceContext{RequestID: requestID}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		t.TraceID = sc.TraceID().String()
		t.SpanID = sc.SpanID().String()
		return t
	}

	raw := uuid.New()
	t.TraceID = hex.EncodeToString(raw[:])
	t.SpanID = hex.EncodeToString(raw[:8])
	return t
}

