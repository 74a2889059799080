// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/identity"
	"github.com/skynet-visitas/authd/pkg/errutil"
)

// Mailer delivers password-reset links. Delivery is best-effort from the
// reset flow's point of view: failures are logged, never surfaced.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, name, link string) error
}

// resetPath is the front-end route that redeems reset tokens.
const resetPath = "/login/reset-password"

// ResetRequestResult is the response of a reset request. OK is always true;
// ResetLink and TTL are only populated when diagnostic link exposure is
// enabled (never in production).
type ResetRequestResult struct {
	OK        bool   `json:"ok"`
	ResetLink string `json:"resetLink,omitempty"`
	TTL       string `json:"ttl,omitempty"`
}

// ResetService implements the forgotten-password flow.
type ResetService struct {
	identities   identity.Repository
	hasher       PasswordHasher
	tokens       *ResetTokens
	mailer       Mailer
	frontendBase string
	exposeLink   bool
	logger       *slog.Logger
}

// NewResetService creates a ResetService. frontendBase is the public base URL
// of the front end; trailing slashes are stripped before links are composed.
// exposeLink additionally returns the redemption link in the response body
// and is intended only for non-production diagnostics.
func NewResetService(
	identities identity.Repository,
	hasher PasswordHasher,
	tokens *ResetTokens,
	mailer Mailer,
	frontendBase string,
	exposeLink bool,
	logger *slog.Logger,
) (*ResetService, error) {
	if identities == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("reset tokens are required")
	}
	if mailer == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("mailer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetService{
		identities:   identities,
		hasher:       hasher,
		tokens:       tokens,
		mailer:       mailer,
		frontendBase: strings.TrimRight(frontendBase, "/"),
		exposeLink:   exposeLink,
		logger:       logger,
	}, nil
}

// BuildResetLink composes the redemption link for a minted token.
func (s *ResetService) BuildResetLink(token string) string {
	return s.frontendBase + resetPath + "?token=" + url.QueryEscape(token)
}

// RequestReset starts the forgotten-password flow for an email address.
//
// The result is {ok:true} regardless of outcome: an unknown or inactive
// email, a token minting problem, and a failed mail delivery all look
// identical to the caller. This is the anti-enumeration contract; internal
// failures are logged only.
func (s *ResetService) RequestReset(ctx context.Context, email string) *ResetRequestResult {
	ok := &ResetRequestResult{OK: true}

	normalized := identity.NormalizeEmail(email)
	if normalized == "" {
		return ok
	}

	ident, err := s.identities.GetByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			errutil.LogError(s.logger, "reset request lookup failed", err)
		}
		return ok
	}
	if !ident.Active {
		return ok
	}

	token, err := s.tokens.Mint(ident.ID, ident.Email)
	if err != nil {
		errutil.LogError(s.logger, "reset token mint failed", err)
		return ok
	}

	link := s.BuildResetLink(token)

	name := ident.Name
	if name == "" {
		name = ident.Email
	}
	if err := s.mailer.SendPasswordReset(ctx, ident.Email, name, link); err != nil {
		errutil.LogError(s.logger, "reset mail delivery failed", err)
	}

	if s.exposeLink {
		return &ResetRequestResult{
			OK:        true,
			ResetLink: link,
			TTL:       s.tokens.TTL().String(),
		}
	}
	return ok
}

// RedeemReset validates a reset token and replaces the bound identity's
// credential with newSecret. A missing, deleted, or inactive identity is
// indistinguishable from a bad token.
func (s *ResetService) RedeemReset(ctx context.Context, token, newSecret string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return err
	}

	subjectID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return oops.Code("RESET_TOKEN_INVALID").Errorf("invalid token")
	}

	ident, err := s.identities.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").Errorf("invalid token")
		}
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "get identity by id").
			Wrap(err)
	}
	if !ident.Active {
		return oops.Code("RESET_TOKEN_INVALID").Errorf("invalid token")
	}

	if err := ValidateSecretLength(newSecret); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}
	if err := s.identities.UpdateHash(ctx, ident.ID, hash); err != nil {
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "persist new hash").
			Wrap(err)
	}

	return nil
}
