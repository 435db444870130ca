package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/metrics"
)

type ctxKey int

const actorCtxKey ctxKey = iota

// actorFrom extracts the authenticated actor stashed by requireAuth.
func actorFrom(r *http.Request) (authz.Actor, bool) {
	a, ok := r.Context().Value(actorCtxKey).(authz.Actor)
	return a, ok
}

// authMiddleware validates the Authorization: Bearer <access-token>
// header (spec.md §6) and stashes the resolved actor in the request
// context for handlers to read via actorFrom. It does not itself deny
// unauthenticated requests — routes that require a caller call
// requireAuth explicitly, matching the teacher's per-route
// httputil.RequireUserID gate rather than a blanket router-level check.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		claims, err := s.signer.ParseAccessToken(raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		actor := authz.Actor{
			UserID:       claims.Subject,
			UserTypeCode: claims.UserType,
			IsBot:        claims.UserType == "bot",
		}
		ctx := context.WithValue(r.Context(), actorCtxKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth returns the caller's actor or writes a 401 and reports
// false, the per-handler gate every protected endpoint opens with.
func requireAuth(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, r, apperrors.InvalidToken())
		return authz.Actor{}, false
	}
	return actor, true
}

// requestIDMiddleware assigns a request id used to correlate log lines,
// mirroring Logger.WithRequestID's call site.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records spec.md §5-adjacent HTTP observability:
// request counts and latency labeled by route, grounded on the
// teacher's pkg/metrics HTTP collectors already declared in
// internal/metrics.
func (s *Server) metricsMiddleware(routeLabel string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, routeLabel).Observe(time.Since(start).Seconds())
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, routeLabel, http.StatusText(sw.status)).Inc()
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs one structured line per request, mirroring the
// teacher's logrus-based request logging.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithRequestID(w.Header().Get("X-Request-ID")).WithFields(map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("http request")
	})
}
