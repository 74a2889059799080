// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/identity"
)

// DefaultSessionTTL is the session lifetime used when configuration does not
// override it. Expiry is the sole lifetime bound: no revocation list exists.
const DefaultSessionTTL = 24 * time.Hour

// SessionClaims is the signed payload proving an authenticated session.
// Role names reflect assignments at issuance time and are not re-resolved
// while the token lives.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// SessionIssuer mints and verifies HS256 session tokens.
type SessionIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewSessionIssuer creates a SessionIssuer. issuer and audience may be empty,
// in which case they are neither set nor enforced. A non-positive ttl falls
// back to DefaultSessionTTL.
func NewSessionIssuer(secret, issuer, audience string, ttl time.Duration) (*SessionIssuer, error) {
	if secret == "" {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("session signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

// TTL returns the configured session lifetime.
func (i *SessionIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs session claims for an authenticated identity view.
func (i *SessionIssuer) Issue(view *identity.View) (string, error) {
	if view == nil {
		return "", oops.Code("AUTH_SESSION_ISSUE_FAILED").Errorf("identity view is required")
	}

	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   view.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Email: view.Email,
		Name:  view.Name,
		Roles: view.Roles,
	}
	if i.issuer != "" {
		claims.Issuer = i.issuer
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", oops.Code("AUTH_SESSION_ISSUE_FAILED").
			With("operation", "sign session token").
			Wrap(err)
	}
	return token, nil
}

// Verify parses and validates a bearer session token: signature, expiry, and
// the issuer/audience tags when configured. All failure causes collapse into
// AUTH_SESSION_INVALID.
func (i *SessionIssuer) Verify(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, oops.Code("AUTH_SESSION_INVALID").Errorf("invalid session token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	if i.audience != "" {
		opts = append(opts, jwt.WithAudience(i.audience))
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, oops.Code("AUTH_SESSION_INVALID").Errorf("invalid session token")
	}
	if claims.Subject == "" {
		return nil, oops.Code("AUTH_SESSION_INVALID").Errorf("invalid session token")
	}
	return claims, nil
}
