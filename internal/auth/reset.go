// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenTypePasswordReset tags reset tokens. The tag is what prevents a
// session token from being redeemed as a reset token even if the signing
// secrets coincide.
const TokenTypePasswordReset = "password_reset"

// DefaultResetTTL is the reset-token lifetime used when configuration does
// not override it. Deliberately much shorter than the session lifetime.
const DefaultResetTTL = 30 * time.Minute

// ResetClaims is the payload of a password-reset token. Stateless: no
// persisted "used" marker exists, so a token redeems until it expires.
type ResetClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	TokenType string `json:"typ"`
}

// ResetTokens mints and verifies single-purpose password-reset tokens,
// signed with a secret logically separated from the session secret.
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
}

// NewResetTokens creates a ResetTokens. A non-positive ttl falls back to
// DefaultResetTTL.
func NewResetTokens(secret string, ttl time.Duration) (*ResetTokens, error) {
	if secret == "" {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("reset signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &ResetTokens{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the configured reset-token lifetime.
func (r *ResetTokens) TTL() time.Duration {
	return r.ttl
}

// Mint signs a short-lived reset token bound to one identity.
func (r *ResetTokens) Mint(id ulid.ULID, email string) (string, error) {
	now := time.Now().UTC()
	claims := ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
		Email:     email,
		TokenType: TokenTypePasswordReset,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", oops.Code("RESET_TOKEN_MINT_FAILED").
			With("operation", "sign reset token").
			Wrap(err)
	}
	return token, nil
}

// Verify validates a reset token's signature and expiry, then requires the
// password-reset type tag and a subject claim. Any failure, including
// malformed input, collapses into RESET_TOKEN_INVALID.
func (r *ResetTokens) Verify(tokenString string) (*ResetClaims, error) {
	if tokenString == "" {
		return nil, oops.Code("RESET_TOKEN_INVALID").Errorf("invalid or expired token")
	}

	claims := &ResetClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, oops.Code("RESET_TOKEN_INVALID").Errorf("invalid or expired token")
	}

	// A structurally valid token that is not a reset token is rejected here:
	// this is the check that keeps captured session tokens out of the reset
	// redemption path.
	if claims.TokenType != TokenTypePasswordReset || claims.Subject == "" {
		return nil, oops.Code("RESET_TOKEN_INVALID").Errorf("invalid token")
	}

	return claims, nil
}
