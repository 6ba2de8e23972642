// Package tracer is a thin tracing facade used by the backend API client.
//
// Call sites depend on the Tracer and Span interfaces only; the OTel adapter
// plugs them into the global OpenTelemetry provider, and the no-op variant is
// what tests and the terminal client use by default.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span; a non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key/value pair attached to a span.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanCurrentUser = "apiclient.current_user"
	SpanLogin       = "apiclient.login"
	SpanLogout      = "apiclient.logout"
	SpanGuardCheck  = "guard.session_check"
	SpanReconcile   = "session.reconcile"
)

// Attribute keys.
const (
	AttrHTTPMethod   = "http.method"
	AttrHTTPPath     = "http.path"
	AttrHTTPStatus   = "http.status_code"
	AttrOutcome      = "outcome"
	AttrRouteFamily  = "route.family"
	AttrBreakerState = "breaker.state"
)
