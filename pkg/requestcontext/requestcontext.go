// Package requestcontext carries per-request values set by portal middleware.
package requestcontext

import "context"

type (
	requestIDKey  struct{}
	clientIPKey   struct{}
	userAgentKey  struct{}
	deviceNameKey struct{}
)

// WithRequestID stores the request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request correlation id, or "" when none was set.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithClientMetadata stores the client IP, raw User-Agent and a display name
// for the device derived from it.
func WithClientMetadata(ctx context.Context, ip, userAgent, deviceName string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, ip)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return context.WithValue(ctx, deviceNameKey{}, deviceName)
}

func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

func DeviceName(ctx context.Context) string {
	if name, ok := ctx.Value(deviceNameKey{}).(string); ok {
		return name
	}
	return ""
}
