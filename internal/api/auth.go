// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strings"

	"github.com/cityops/data-api/internal/auth"
	"github.com/cityops/data-api/internal/log"
)

// Realm roles checked by the API. Occurrence endpoints require RoleUser;
// analysis-type writes additionally require RoleAdmin.
const (
	RoleUser  = "user_role"
	RoleAdmin = "admin_role"
)

// authenticate verifies the bearer token and stores the principal in the
// request context. Token problems are 401; role checks happen later and are
// 403.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Keycloak.Disabled {
			// development mode: every request acts as a full-access user
			ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{
				Username: "dev",
				Roles:    []string{RoleUser, RoleAdmin},
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token := bearerToken(r)
		if token == "" {
			authFailures.WithLabelValues("missing_token").Inc()
			writeUnauthorized(w, auth.ErrTokenMissing.Error())
			return
		}

		principal, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			authFailures.WithLabelValues("invalid_token").Inc()
			logger := log.WithComponentFromContext(r.Context(), "auth")
			logger.Warn().
				Err(err).
				Str("event", "auth.rejected").
				Str("path", r.URL.Path).
				Msg("token rejected")
			writeUnauthorized(w, err.Error())
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles enforces that the authenticated principal holds every listed
// role.
func requireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				authFailures.WithLabelValues("missing_principal").Inc()
				writeUnauthorized(w, auth.ErrTokenMissing.Error())
				return
			}
			if !principal.HasRoles(roles...) {
				authFailures.WithLabelValues("missing_role").Inc()
				logger := log.WithComponentFromContext(r.Context(), "auth")
				logger.Warn().
					Str("event", "auth.role_denied").
					Str("subject", principal.Subject).
					Strs("required", roles).
					Msg("required role missing")
				writeForbidden(w, auth.ErrMissingRole.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
