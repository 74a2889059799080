// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/identity"
	"github.com/skynet-visitas/authd/pkg/errutil"
)

// Service orchestrates login authentication.
type Service struct {
	identities identity.Repository
	roles      identity.RoleRepository
	hasher     PasswordHasher
	logger     *slog.Logger
}

// NewService creates a new Service.
func NewService(identities identity.Repository, roles identity.RoleRepository, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(identities, roles, hasher, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(identities identity.Repository, roles identity.RoleRepository, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if identities == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity repository is required")
	}
	if roles == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("role repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("logger is required")
	}
	return &Service{
		identities: identities,
		roles:      roles,
		hasher:     hasher,
		logger:     logger,
	}, nil
}

// dummyCredentialHash is verified against when no identity matches the email,
// keeping the response time of unknown and known accounts in the same class.
// This is NOT a real credential - it never matches any secret.
//
//nolint:gosec // G101: intentionally fake hash for timing uniformity, not a credential.
const dummyCredentialHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"

// errInvalidCredentials is the single observable login failure. The message
// never distinguishes "no such account" from "wrong password" from
// "deactivated account".
func errInvalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
}

// Authenticate verifies an (email, secret) pair and returns the identity view
// with resolved role names. All failure causes collapse into the same
// AUTH_INVALID_CREDENTIALS error to prevent account enumeration.
//
// When the stored credential is still in a legacy format and verification
// succeeds, the record is opportunistically re-hashed with the modern format.
// That upgrade is best-effort: a failed persist is logged and never fails the
// login, since the caller already proved the secret.
func (s *Service) Authenticate(ctx context.Context, email, secret string) (*identity.View, error) {
	normalized := identity.NormalizeEmail(email)
	if normalized == "" {
		// Same observable outcome as an unknown account.
		return nil, errInvalidCredentials()
	}

	ident, lookupErr := s.identities.GetByEmail(ctx, normalized)

	var targetHash string
	var identityUsable bool

	if lookupErr != nil {
		if !errors.Is(lookupErr, identity.ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get identity by email").
				Wrap(lookupErr)
		}
		targetHash = dummyCredentialHash
		identityUsable = false
	} else {
		targetHash = ident.Hash
		identityUsable = ident.Active
	}

	// Always verify, against the dummy hash if needed, to keep timing uniform.
	valid, verifyErr := s.hasher.Verify(secret, targetHash)
	if verifyErr != nil {
		if ident == nil {
			return nil, errInvalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !identityUsable || !valid {
		return nil, errInvalidCredentials()
	}

	// Opportunistic migration of legacy records, at most once per login.
	if s.hasher.NeedsUpgrade(ident.Hash) {
		if newHash, hashErr := s.hasher.Hash(secret); hashErr == nil {
			if upErr := s.identities.UpdateHash(ctx, ident.ID, newHash); upErr != nil {
				errutil.LogError(s.logger, "credential hash upgrade failed", upErr)
			}
		}
	}

	roles, err := s.roles.NamesForIdentity(ctx, ident.ID)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "resolve role assignments").
			Wrap(err)
	}

	return &identity.View{
		ID:    ident.ID,
		Email: ident.Email,
		Name:  ident.Name,
		Roles: roles,
	}, nil
}
