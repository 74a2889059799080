// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package postgres

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/identity"
)

// RoleRepository implements identity.RoleRepository using PostgreSQL.
type RoleRepository struct {
	pool poolIface
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(pool poolIface) *RoleRepository {
	return &RoleRepository{pool: pool}
}

// NamesForIdentity returns the role names assigned to an identity, sorted.
func (r *RoleRepository) NamesForIdentity(ctx context.Context, id ulid.ULID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.nombre
		FROM usuario_rol ur
		JOIN rol r ON r.id = ur.rol_id
		WHERE ur.usuario_id = $1
		ORDER BY r.nombre
	`, id.String())
	if err != nil {
		return nil, oops.Code("ROLES_QUERY_FAILED").
			With("operation", "query role assignments").
			With("identity_id", id.String()).
			Wrap(err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, oops.Code("ROLES_SCAN_FAILED").
				With("operation", "scan role name").
				With("identity_id", id.String()).
				Wrap(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ROLES_ITERATE_FAILED").
			With("operation", "iterate role assignments").
			With("identity_id", id.String()).
			Wrap(err)
	}

	return names, nil
}

// Compile-time interface check.
var _ identity.RoleRepository = (*RoleRepository)(nil)
