// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

// Package identity defines the account domain types and their persistence
// contracts. The credential authority only ever mutates the Hash field of an
// Identity; creation and soft deletion belong to the registration path.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a requested identity does not exist
// (or exists only as a soft-deleted record).
var ErrNotFound = errors.New("not found")

// Identity represents one operator account.
type Identity struct {
	ID           ulid.ULID
	Name         string
	Email        string // stored normalized: trimmed, lowercased
	Hash         string // credential hash; the prefix identifies the format
	Active       bool
	SupervisorID *ulid.ULID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time // nil while the account is live
}

// IsDeleted returns true if the identity has been soft-deleted.
func (i *Identity) IsDeleted() bool {
	return i.DeletedAt != nil
}

// View is the safe projection of an Identity handed out after
// authentication: no credential hash, roles resolved.
type View struct {
	ID    ulid.ULID
	Email string
	Name  string
	Roles []string
}

// NormalizeEmail trims surrounding whitespace and lowercases an email
// address. All lookups and stored values use the normalized form; uniqueness
// among non-deleted identities is defined over it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository manages identity persistence. All lookups exclude soft-deleted
// records; a deleted identity's email may be reused by a live one.
type Repository interface {
	// GetByEmail retrieves a live identity by normalized email
	// (case-insensitive). Returns ErrNotFound if no live identity matches.
	GetByEmail(ctx context.Context, email string) (*Identity, error)

	// GetByID retrieves a live identity by ID.
	// Returns ErrNotFound if absent or soft-deleted.
	GetByID(ctx context.Context, id ulid.ULID) (*Identity, error)

	// UpdateHash replaces the credential hash of a live identity.
	// Returns ErrNotFound if absent or soft-deleted.
	UpdateHash(ctx context.Context, id ulid.ULID, hash string) error
}
