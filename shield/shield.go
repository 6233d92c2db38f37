// Package shield provides the HTTP middleware wrapped around the import API:
// security headers, upload body limits, request tracing, per-user rate
// limiting and HEAD handling.
//
//	r := chi.NewRouter()
//	r.Use(shield.DefaultAPIStack()...)
//	r.With(shield.MaxBody(100 << 20)).Post("/v1/import", h)
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultAPIStack returns the standard middleware stack for the JSON API,
// outermost first.
func DefaultAPIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders),
		TraceID,
	}
}

// HeadToGet routes HEAD requests to the GET handlers (health checks probe
// /healthz with HEAD). net/http discards the body it writes.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		get := r.Clone(r.Context())
		get.Method = http.MethodGet
		next.ServeHTTP(w, get)
	})
}
