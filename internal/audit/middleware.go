package audit

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ActorHeader carries the id of the operator issuing a request.
const ActorHeader = "X-Actor-ID"

// Middleware stores the client ip in the request context and, once the handler returns, writes an
// audit entry for every audited route (see Audited). It must run inside a chi router.
func Middleware(l AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(WithClientIP(r.Context(), remoteIP(r)))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			rctx := chi.RouteContext(r.Context())
			if l == nil || rctx == nil {
				return
			}
			pattern := rctx.RoutePattern()
			if pattern == "" || !Audited(r.Method, pattern) {
				return
			}
			ar := ParseRoute(r.Method, pattern)
			meta, _ := json.Marshal(map[string]any{
				"path":   r.URL.Path,
				"status": ww.Status(),
			})
			l.LogEvent(r.Context(), chi.URLParam(r, "organizationID"), r.Header.Get(ActorHeader), ar.Action, ar.Resource, string(meta))
		})
	}
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
