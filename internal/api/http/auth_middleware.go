package httpapi

import (
	"net/http"
	"strings"

	"github.com/petmarket/escrow-hub/internal/apperr"
)

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.authSvc.Authenticate(extractToken(r))
		if err != nil {
			respondError(w, http.StatusUnauthorized, string(apperr.CodeUnauthenticated), "missing or invalid bearer token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, string(apperr.CodeUnauthenticated), "missing auth", nil)
			return
		}
		if !actor.IsAdmin() {
			respondError(w, http.StatusForbidden, string(apperr.CodeForbidden), "insufficient role", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	// EventSource cannot set headers.
	if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
