package shield

import "net/http"

// Header is one response header set by SecurityHeaders.
type Header struct {
	Name, Value string
}

// APIHeaders lock down responses that only ever carry JSON or metrics text.
// Chapter previews may contain user text, so nothing is cacheable.
var APIHeaders = []Header{
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets headers on every response before the handler runs,
// so handlers may still override them. Empty values are skipped.
func SecurityHeaders(headers []Header) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hd := range headers {
				if hd.Value != "" {
					h.Set(hd.Name, hd.Value)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
