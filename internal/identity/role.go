// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package identity

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Role is a named permission category. Read-only from this core's
// perspective; role administration lives in the entity CRUD layer.
type Role struct {
	ID   ulid.ULID
	Name string // unique
}

// RoleRepository resolves role assignments. Role names are resolved once at
// authentication time and baked into session claims; they are not a live
// property of a session.
type RoleRepository interface {
	// NamesForIdentity returns the role names assigned to an identity,
	// sorted by name. An identity with no assignments yields an empty slice.
	NamesForIdentity(ctx context.Context, id ulid.ULID) ([]string, error)
}
