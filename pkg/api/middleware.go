package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/rbac"
)

type ctxKey string

const ctxKeyClaims ctxKey = "cockpit.claims"

// authenticate accepts either an "Authorization: Bearer <jwt>" access token
// or an "X-Api-Key" header, resolving either to the same claims shape so
// downstream handlers and the RBAC middleware never need to know which one
// was used.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
			c, err := s.claimsFromAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, c)))
			return
		}

		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeError(w, apperrors.New(apperrors.Authentication, "missing bearer token or api key"))
			return
		}

		c, err := s.tokens.parse(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			writeError(w, err)
			return
		}
		if c.Subject != tokenTypeAccess {
			writeError(w, apperrors.New(apperrors.Authentication, "refresh token cannot be used to authenticate requests"))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, c)))
	})
}

func (s *Server) claimsFromAPIKey(ctx context.Context, rawKey string) (*claims, error) {
	user, err := s.users.GetByAPIKeyHash(ctx, hashAPIKeyForLookup(rawKey))
	if err != nil {
		return nil, err
	}
	grants, err := resolveGrants(ctx, s.rbac, user.ID)
	if err != nil {
		return nil, err
	}
	return &claims{UserID: user.ID, Username: user.Username, Grants: grants}, nil
}

func claimsFromContext(ctx context.Context) (*claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*claims)
	return c, ok
}

// requirePermission is the require_permission(resource, action) dependency
// expressed as chi middleware: it loads the caller's claims (already
// resolved by authenticate) and rejects the request with 403 if the grant
// is absent.
func requirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := claimsFromContext(r.Context())
			if !ok {
				writeError(w, apperrors.New(apperrors.Authentication, "missing authentication context"))
				return
			}
			if err := rbac.Require(c.Grants, resource, action); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// httpMetrics records request count and duration by route pattern and
// status class, grounded on kubernaut's gateway HTTPMetrics middleware
// test (pkg/gateway/middleware.HTTPMetrics).
func httpMetrics(reqTotal *prometheus.CounterVec, reqDuration *prometheus.HistogramVec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			duration := time.Since(start).Seconds()
			pattern := routePattern(r)
			reqTotal.WithLabelValues(r.Method, pattern, statusClass(sw.status)).Inc()
			reqDuration.WithLabelValues(r.Method, pattern).Observe(duration)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
