// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/identity"
)

// AdministratorRole is the role name that grants delegated password changes
// over other identities. Matched case-insensitively after trimming.
const AdministratorRole = "ADMINISTRADOR"

// MinPasswordLength is the minimum accepted length for a new password, in
// bytes of the supplied string.
const MinPasswordLength = 8

// Caller identifies the authenticated principal performing a password change,
// as carried by its session claims.
type Caller struct {
	ID    string
	Roles []string
}

// IsAdministrator reports whether any of the caller's roles is the
// administrator role.
func (c Caller) IsAdministrator() bool {
	for _, role := range c.Roles {
		if strings.EqualFold(strings.TrimSpace(role), AdministratorRole) {
			return true
		}
	}
	return false
}

// ChangeReceipt confirms a completed password change.
type ChangeReceipt struct {
	OK            bool   `json:"ok"`
	Message       string `json:"message"`
	ChangedUserID string `json:"changedUserId"`
	By            string `json:"by"`
}

// ValidateSecretLength enforces the minimum password length.
func ValidateSecretLength(secret string) error {
	if len(secret) < MinPasswordLength {
		return oops.Code("PASSWORD_TOO_SHORT").
			With("min_length", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// PasswordService implements authenticated password changes: self-service
// with current-password proof, and delegated changes by administrators.
type PasswordService struct {
	identities identity.Repository
	hasher     PasswordHasher
	logger     *slog.Logger
}

// NewPasswordService creates a PasswordService.
func NewPasswordService(identities identity.Repository, hasher PasswordHasher, logger *slog.Logger) (*PasswordService, error) {
	if identities == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordService{
		identities: identities,
		hasher:     hasher,
		logger:     logger,
	}, nil
}

func errChangeForbidden() error {
	return oops.Code("CHANGE_FORBIDDEN").Errorf("not allowed to change this password")
}

// ChangeOwnPassword replaces the caller's own credential after proving
// knowledge of the current one. The current-password check runs against the
// stored value in whatever format it is in, so identities still on a legacy
// credential can change it too.
func (s *PasswordService) ChangeOwnPassword(ctx context.Context, caller Caller, currentSecret, newSecret string) (*ChangeReceipt, error) {
	if caller.ID == "" {
		return nil, errChangeForbidden()
	}
	callerID, err := ulid.Parse(caller.ID)
	if err != nil {
		return nil, errChangeForbidden()
	}

	ident, err := s.identities.GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, errChangeForbidden()
		}
		return nil, oops.Code("CHANGE_FAILED").
			With("operation", "get caller identity").
			Wrap(err)
	}
	if !ident.Active {
		return nil, errChangeForbidden()
	}

	valid, err := s.hasher.Verify(currentSecret, ident.Hash)
	if err != nil {
		return nil, oops.Code("CHANGE_FAILED").
			With("operation", "verify current password").
			Wrap(err)
	}
	if !valid {
		return nil, oops.Code("AUTH_CURRENT_PASSWORD").Errorf("current password is incorrect")
	}

	if err := ValidateSecretLength(newSecret); err != nil {
		return nil, err
	}
	if err := s.rejectReuse(ident.Hash, newSecret); err != nil {
		return nil, err
	}

	if err := s.replaceHash(ctx, ident.ID, newSecret); err != nil {
		return nil, err
	}

	return &ChangeReceipt{
		OK:            true,
		Message:       "Contraseña actualizada",
		ChangedUserID: ident.ID.String(),
		By:            ident.ID.String(),
	}, nil
}

// ChangeUserPassword replaces a target identity's credential on behalf of the
// caller. Allowed when the caller holds the administrator role or the target
// is the caller itself; no current-password proof is required on this path.
//
// Check order is fixed: caller presence, target existence, authorization,
// then password policy. A deleted or inactive target reads as not found.
func (s *PasswordService) ChangeUserPassword(ctx context.Context, caller Caller, targetID, newSecret string) (*ChangeReceipt, error) {
	if caller.ID == "" {
		return nil, errChangeForbidden()
	}

	parsedTarget, err := ulid.Parse(targetID)
	if err != nil {
		return nil, oops.Code("TARGET_NOT_FOUND").Errorf("target user not available")
	}

	target, err := s.identities.GetByID(ctx, parsedTarget)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, oops.Code("TARGET_NOT_FOUND").Errorf("target user not available")
		}
		return nil, oops.Code("CHANGE_FAILED").
			With("operation", "get target identity").
			Wrap(err)
	}
	if !target.Active {
		return nil, oops.Code("TARGET_NOT_FOUND").Errorf("target user not available")
	}

	if !caller.IsAdministrator() && caller.ID != target.ID.String() {
		return nil, errChangeForbidden()
	}

	if err := ValidateSecretLength(newSecret); err != nil {
		return nil, err
	}
	if err := s.rejectReuse(target.Hash, newSecret); err != nil {
		return nil, err
	}

	if err := s.replaceHash(ctx, target.ID, newSecret); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("changed_user_id", target.ID.String()),
		slog.String("by", caller.ID))

	return &ChangeReceipt{
		OK:            true,
		Message:       "Contraseña actualizada",
		ChangedUserID: target.ID.String(),
		By:            caller.ID,
	}, nil
}

// rejectReuse refuses a new password equal to the current one. The
// comparison dispatches on the stored format, so it works for bcrypt and
// legacy records alike.
func (s *PasswordService) rejectReuse(storedHash, newSecret string) error {
	same, err := s.hasher.Verify(newSecret, storedHash)
	if err != nil {
		return oops.Code("CHANGE_FAILED").
			With("operation", "compare against current password").
			Wrap(err)
	}
	if same {
		return oops.Code("PASSWORD_REUSE").Errorf("new password must differ from the current one")
	}
	return nil
}

func (s *PasswordService) replaceHash(ctx context.Context, id ulid.ULID, newSecret string) error {
	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return oops.Code("CHANGE_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}
	if err := s.identities.UpdateHash(ctx, id, hash); err != nil {
		return oops.Code("CHANGE_FAILED").
			With("operation", "persist new hash").
			Wrap(err)
	}
	return nil
}
