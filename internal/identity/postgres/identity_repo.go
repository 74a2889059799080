// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

// Package postgres implements the identity persistence contracts using
// PostgreSQL. Uniqueness of email among live accounts is enforced by a
// partial unique index (WHERE eliminado_en IS NULL) so a soft-deleted
// identity's email can be reused.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/identity"
)

// poolIface is the subset of pgxpool.Pool the repositories use.
// pgxmock.PgxPoolIface satisfies it for unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const identityColumns = `id, nombre, email, hash, activo, supervisor_id, creado_en, actualizado_en, eliminado_en`

// IdentityRepository implements identity.Repository using PostgreSQL.
type IdentityRepository struct {
	pool poolIface
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(pool poolIface) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// GetByEmail retrieves a live identity by normalized email (case-insensitive).
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM usuario
		WHERE LOWER(email) = LOWER($1) AND eliminado_en IS NULL
	`, email)

	ident, err := r.scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("email", email).
			Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_BY_EMAIL_FAILED").
			With("operation", "get identity by email").
			Wrap(err)
	}
	return ident, nil
}

// GetByID retrieves a live identity by ID.
func (r *IdentityRepository) GetByID(ctx context.Context, id ulid.ULID) (*identity.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM usuario
		WHERE id = $1 AND eliminado_en IS NULL
	`, id.String())

	ident, err := r.scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_BY_ID_FAILED").
			With("operation", "get identity by id").
			With("id", id.String()).
			Wrap(err)
	}
	return ident, nil
}

// UpdateHash replaces the credential hash of a live identity.
func (r *IdentityRepository) UpdateHash(ctx context.Context, id ulid.ULID, hash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE usuario SET hash = $2, actualizado_en = $3
		WHERE id = $1 AND eliminado_en IS NULL
	`, id.String(), hash, time.Now())
	if err != nil {
		return oops.Code("IDENTITY_UPDATE_HASH_FAILED").
			With("operation", "update credential hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// scanIdentity scans a single row into an Identity.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *IdentityRepository) scanIdentity(row pgx.Row) (*identity.Identity, error) {
	var (
		idStr           string
		name            string
		email           string
		hash            string
		active          bool
		supervisorIDStr *string
		createdAt       time.Time
		updatedAt       time.Time
		deletedAt       *time.Time
	)

	err := row.Scan(
		&idStr,
		&name,
		&email,
		&hash,
		&active,
		&supervisorIDStr,
		&createdAt,
		&updatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("IDENTITY_SCAN_FAILED").
			With("operation", "scan identity").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").
			With("operation", "parse identity id").
			With("id", idStr).
			Wrap(err)
	}

	var supervisorID *ulid.ULID
	if supervisorIDStr != nil {
		parsed, err := ulid.Parse(*supervisorIDStr)
		if err != nil {
			return nil, oops.Code("IDENTITY_INVALID_SUPERVISOR_ID").
				With("operation", "parse supervisor id").
				With("supervisor_id", *supervisorIDStr).
				Wrap(err)
		}
		supervisorID = &parsed
	}

	return &identity.Identity{
		ID:           id,
		Name:         name,
		Email:        email,
		Hash:         hash,
		Active:       active,
		SupervisorID: supervisorID,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		DeletedAt:    deletedAt,
	}, nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, e.g. a duplicate live email racing the partial unique index.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Compile-time interface check.
var _ identity.Repository = (*IdentityRepository)(nil)
