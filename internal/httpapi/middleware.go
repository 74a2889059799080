// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/auth"
)

type contextKey struct{ name string }

var sessionKey = contextKey{"session"}

// sessionFrom returns the verified session claims for the request, or nil
// outside requireSession.
func sessionFrom(ctx context.Context) *auth.SessionClaims {
	claims, _ := ctx.Value(sessionKey).(*auth.SessionClaims)
	return claims
}

// requireSession rejects requests without a valid bearer session token and
// stores the verified claims on the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, oops.Code("AUTH_SESSION_INVALID").Errorf("missing bearer token"))
			return
		}

		claims, err := s.deps.Sessions.Verify(token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <t>" header.
// The scheme comparison is case-insensitive per RFC 9110.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
