// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skynet-visitas/authd/internal/auth"
	authmocks "github.com/skynet-visitas/authd/internal/auth/mocks"
	"github.com/skynet-visitas/authd/internal/identity"
	identitymocks "github.com/skynet-visitas/authd/internal/identity/mocks"
	"github.com/skynet-visitas/authd/pkg/errutil"
)

func TestNewService_NilDependencies(t *testing.T) {
	identities := identitymocks.NewMockRepository(t)
	roles := identitymocks.NewMockRoleRepository(t)
	hasher := authmocks.NewMockPasswordHasher(t)

	tests := []struct {
		name       string
		identities identity.Repository
		roles      identity.RoleRepository
		hasher     auth.PasswordHasher
		wantMsg    string
	}{
		{"nil identities", nil, roles, hasher, "identity repository"},
		{"nil roles", identities, nil, hasher, "role repository"},
		{"nil hasher", identities, roles, nil, "password hasher"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.identities, tt.roles, tt.hasher)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func activeIdentity(t *testing.T, email, hash string) *identity.Identity {
	t.Helper()
	return &identity.Identity{
		ID:     ulid.Make(),
		Name:   "Test User",
		Email:  email,
		Hash:   hash,
		Active: true,
	}
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("successful login returns view with roles", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		ident := activeIdentity(t, "user@example.com", "$2a$10$storedhash")
		identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		hasher.On("Verify", "password123", ident.Hash).Return(true, nil)
		hasher.On("NeedsUpgrade", ident.Hash).Return(false)
		roles.On("NamesForIdentity", ctx, ident.ID).Return([]string{"SUPERVISOR"}, nil)

		view, err := svc.Authenticate(ctx, "user@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, ident.ID, view.ID)
		assert.Equal(t, "user@example.com", view.Email)
		assert.Equal(t, "Test User", view.Name)
		assert.Equal(t, []string{"SUPERVISOR"}, view.Roles)
	})

	t.Run("email is normalized before lookup", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		ident := activeIdentity(t, "user@example.com", "$2a$10$storedhash")
		identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		hasher.On("Verify", "password123", ident.Hash).Return(true, nil)
		hasher.On("NeedsUpgrade", ident.Hash).Return(false)
		roles.On("NamesForIdentity", ctx, ident.ID).Return([]string{}, nil)

		view, err := svc.Authenticate(ctx, "  User@Example.COM ", "password123")
		require.NoError(t, err)
		assert.Empty(t, view.Roles)
	})

	t.Run("unknown email still verifies against a dummy hash", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		identities.On("GetByEmail", ctx, "ghost@example.com").Return(nil, identity.ErrNotFound)
		// Verify runs against the dummy hash so unknown accounts cost the same.
		hasher.On("Verify", "password123", mock.AnythingOfType("string")).Return(false, nil)

		view, err := svc.Authenticate(ctx, "ghost@example.com", "password123")
		require.Error(t, err)
		assert.Nil(t, view)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("wrong password fails with the same error", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		ident := activeIdentity(t, "user@example.com", "$2a$10$storedhash")
		identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		hasher.On("Verify", "wrongpassword", ident.Hash).Return(false, nil)

		view, err := svc.Authenticate(ctx, "user@example.com", "wrongpassword")
		require.Error(t, err)
		assert.Nil(t, view)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("inactive identity fails even with the correct password", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		ident := activeIdentity(t, "user@example.com", "$2a$10$storedhash")
		ident.Active = false
		identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		// Verify still runs, keeping the deactivated case in the same timing class.
		hasher.On("Verify", "password123", ident.Hash).Return(true, nil)

		view, err := svc.Authenticate(ctx, "user@example.com", "password123")
		require.Error(t, err)
		assert.Nil(t, view)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("empty email fails without touching the store", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		view, err := svc.Authenticate(ctx, "   ", "password123")
		require.Error(t, err)
		assert.Nil(t, view)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("store failure surfaces as login failure", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		identities.On("GetByEmail", ctx, "user@example.com").Return(nil, errors.New("connection refused"))

		view, err := svc.Authenticate(ctx, "user@example.com", "password123")
		require.Error(t, err)
		assert.Nil(t, view)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})

	t.Run("role lookup failure surfaces as login failure", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		ident := activeIdentity(t, "user@example.com", "$2a$10$storedhash")
		identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		hasher.On("Verify", "password123", ident.Hash).Return(true, nil)
		hasher.On("NeedsUpgrade", ident.Hash).Return(false)
		roles.On("NamesForIdentity", ctx, ident.ID).Return(nil, errors.New("query failed"))

		view, err := svc.Authenticate(ctx, "user@example.com", "password123")
		require.Error(t, err)
		assert.Nil(t, view)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})
}

func TestService_Authenticate_LegacyMigration(t *testing.T) {
	ctx := context.Background()

	t.Run("legacy credential is re-hashed after a successful login", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		ident := activeIdentity(t, "user@example.com", "legacyplain")
		identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		hasher.On("Verify", "legacyplain", "legacyplain").Return(true, nil)
		hasher.On("NeedsUpgrade", "legacyplain").Return(true)
		hasher.On("Hash", "legacyplain").Return("$2a$10$freshhash", nil)
		identities.On("UpdateHash", ctx, ident.ID, "$2a$10$freshhash").Return(nil)
		roles.On("NamesForIdentity", ctx, ident.ID).Return([]string{}, nil)

		view, err := svc.Authenticate(ctx, "user@example.com", "legacyplain")
		require.NoError(t, err)
		assert.Equal(t, ident.ID, view.ID)
	})

	t.Run("failed hash persist does not fail the login", func(t *testing.T) {
		identities := identitymocks.NewMockRepository(t)
		roles := identitymocks.NewMockRoleRepository(t)
		hasher := authmocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(identities, roles, hasher)
		require.NoError(t, err)

		ident := activeIdentity(t, "user@example.com", "legacyplain")
		identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		hasher.On("Verify", "legacyplain", "legacyplain").Return(true, nil)
		hasher.On("NeedsUpgrade", "legacyplain").Return(true)
		hasher.On("Hash", "legacyplain").Return("$2a$10$freshhash", nil)
		identities.On("UpdateHash", ctx, ident.ID, "$2a$10$freshhash").Return(errors.New("write failed"))
		roles.On("NamesForIdentity", ctx, ident.ID).Return([]string{}, nil)

		view, err := svc.Authenticate(ctx, "user@example.com", "legacyplain")
		require.NoError(t, err)
		assert.NotNil(t, view)
	})
}
