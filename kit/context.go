// Package kit carries per-call metadata (caller, request id, transport)
// across the HTTP and MCP surfaces, and the endpoint middleware they share.
package kit

import "context"

type ctxKey int

const (
	userKey ctxKey = iota
	requestKey
	transportKey
	remoteKey
)

// Transport names recorded in the context.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp_stdio"
)

func withValue(ctx context.Context, k ctxKey, v string) context.Context {
	return context.WithValue(ctx, k, v)
}

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// WithUserID records the authenticated caller.
func WithUserID(ctx context.Context, id string) context.Context {
	return withValue(ctx, userKey, id)
}

// GetUserID returns the authenticated caller, or "".
func GetUserID(ctx context.Context) string { return value(ctx, userKey) }

// WithRequestID records the correlation id of the current call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestKey, id)
}

func GetRequestID(ctx context.Context) string { return value(ctx, requestKey) }

func WithTransport(ctx context.Context, t string) context.Context {
	return withValue(ctx, transportKey, t)
}

// GetTransport returns the transport of the call, TransportHTTP when unset.
func GetTransport(ctx context.Context) string {
	if v := value(ctx, transportKey); v != "" {
		return v
	}
	return TransportHTTP
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return withValue(ctx, remoteKey, addr)
}

func GetRemoteAddr(ctx context.Context) string { return value(ctx, remoteKey) }
