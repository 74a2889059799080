// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

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

type resetFixture struct {
	identities *identitymocks.MockRepository
	hasher     *authmocks.MockPasswordHasher
	tokens     *auth.ResetTokens
	mailer     *authmocks.MockMailer
	svc        *auth.ResetService
}

func newResetFixture(t *testing.T, exposeLink bool) *resetFixture {
	t.Helper()

	identities := identitymocks.NewMockRepository(t)
	hasher := authmocks.NewMockPasswordHasher(t)
	mailer := authmocks.NewMockMailer(t)
	tokens, err := auth.NewResetTokens("resetsecret", 30*time.Minute)
	require.NoError(t, err)

	svc, err := auth.NewResetService(identities, hasher, tokens, mailer,
		"https://visitas.example.com/", exposeLink, nil)
	require.NoError(t, err)

	return &resetFixture{
		identities: identities,
		hasher:     hasher,
		tokens:     tokens,
		mailer:     mailer,
		svc:        svc,
	}
}

func TestResetService_RequestReset(t *testing.T) {
	ctx := context.Background()

	t.Run("known active identity gets a mail", func(t *testing.T) {
		f := newResetFixture(t, false)

		ident := activeIdentity(t, "user@example.com", "$2a$10$storedhash")
		f.identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		f.mailer.On("SendPasswordReset", ctx, "user@example.com", "Test User",
			mock.MatchedBy(func(link string) bool {
				return strings.HasPrefix(link, "https://visitas.example.com/login/reset-password?token=")
			})).Return(nil)

		result := f.svc.RequestReset(ctx, "user@example.com")
		assert.True(t, result.OK)
		assert.Empty(t, result.ResetLink)
		assert.Empty(t, result.TTL)
	})

	t.Run("unknown email is indistinguishable and sends nothing", func(t *testing.T) {
		f := newResetFixture(t, false)

		f.identities.On("GetByEmail", ctx, "ghost@example.com").Return(nil, identity.ErrNotFound)

		result := f.svc.RequestReset(ctx, "ghost@example.com")
		assert.True(t, result.OK)
		f.mailer.AssertNotCalled(t, "SendPasswordReset")
	})

	t.Run("inactive identity is indistinguishable and sends nothing", func(t *testing.T) {
		f := newResetFixture(t, false)

		ident := activeIdentity(t, "user@example.com", "$2a$10$storedhash")
		ident.Active = false
		f.identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)

		result := f.svc.RequestReset(ctx, "user@example.com")
		assert.True(t, result.OK)
		f.mailer.AssertNotCalled(t, "SendPasswordReset")
	})

	t.Run("store failure is swallowed", func(t *testing.T) {
		f := newResetFixture(t, false)

		f.identities.On("GetByEmail", ctx, "user@example.com").Return(nil, errors.New("connection refused"))

		result := f.svc.RequestReset(ctx, "user@example.com")
		assert.True(t, result.OK)
	})

	t.Run("mail failure is swallowed", func(t *testing.T) {
		f := newResetFixture(t, false)

		ident := activeIdentity(t, "user@example.com", "$2a$10$storedhash")
		f.identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		f.mailer.On("SendPasswordReset", ctx, "user@example.com", "Test User",
			mock.AnythingOfType("string")).Return(errors.New("smtp down"))

		result := f.svc.RequestReset(ctx, "user@example.com")
		assert.True(t, result.OK)
	})

	t.Run("expose flag returns link and ttl", func(t *testing.T) {
		f := newResetFixture(t, true)

		ident := activeIdentity(t, "user@example.com", "$2a$10$storedhash")
		f.identities.On("GetByEmail", ctx, "user@example.com").Return(ident, nil)
		f.mailer.On("SendPasswordReset", ctx, "user@example.com", "Test User",
			mock.AnythingOfType("string")).Return(nil)

		result := f.svc.RequestReset(ctx, "user@example.com")
		assert.True(t, result.OK)
		assert.Contains(t, result.ResetLink, "https://visitas.example.com/login/reset-password?token=")
		assert.Equal(t, "30m0s", result.TTL)
	})
}

func TestResetService_RedeemReset(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token replaces the credential", func(t *testing.T) {
		f := newResetFixture(t, false)

		ident := activeIdentity(t, "user@example.com", "$2a$10$oldhash")
		token, err := f.tokens.Mint(ident.ID, ident.Email)
		require.NoError(t, err)

		f.identities.On("GetByID", ctx, ident.ID).Return(ident, nil)
		f.hasher.On("Hash", "newpassword1").Return("$2a$10$newhash", nil)
		f.identities.On("UpdateHash", ctx, ident.ID, "$2a$10$newhash").Return(nil)

		require.NoError(t, f.svc.RedeemReset(ctx, token, "newpassword1"))
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		f := newResetFixture(t, false)

		err := f.svc.RedeemReset(ctx, "not.a.token", "newpassword1")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_TOKEN_INVALID")
	})

	t.Run("token for a vanished identity reads as invalid", func(t *testing.T) {
		f := newResetFixture(t, false)

		id := ulid.Make()
		token, err := f.tokens.Mint(id, "user@example.com")
		require.NoError(t, err)

		f.identities.On("GetByID", ctx, id).Return(nil, identity.ErrNotFound)

		err = f.svc.RedeemReset(ctx, token, "newpassword1")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_TOKEN_INVALID")
	})

	t.Run("token for a deactivated identity reads as invalid", func(t *testing.T) {
		f := newResetFixture(t, false)

		ident := activeIdentity(t, "user@example.com", "$2a$10$oldhash")
		ident.Active = false
		token, err := f.tokens.Mint(ident.ID, ident.Email)
		require.NoError(t, err)

		f.identities.On("GetByID", ctx, ident.ID).Return(ident, nil)

		err = f.svc.RedeemReset(ctx, token, "newpassword1")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_TOKEN_INVALID")
	})

	t.Run("short password is rejected after token validation", func(t *testing.T) {
		f := newResetFixture(t, false)

		ident := activeIdentity(t, "user@example.com", "$2a$10$oldhash")
		token, err := f.tokens.Mint(ident.ID, ident.Email)
		require.NoError(t, err)

		f.identities.On("GetByID", ctx, ident.ID).Return(ident, nil)

		err = f.svc.RedeemReset(ctx, token, "short")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "PASSWORD_TOO_SHORT")
	})

	t.Run("persist failure surfaces as redeem failure", func(t *testing.T) {
		f := newResetFixture(t, false)

		ident := activeIdentity(t, "user@example.com", "$2a$10$oldhash")
		token, err := f.tokens.Mint(ident.ID, ident.Email)
		require.NoError(t, err)

		f.identities.On("GetByID", ctx, ident.ID).Return(ident, nil)
		f.hasher.On("Hash", "newpassword1").Return("$2a$10$newhash", nil)
		f.identities.On("UpdateHash", ctx, ident.ID, "$2a$10$newhash").Return(errors.New("write failed"))

		err = f.svc.RedeemReset(ctx, token, "newpassword1")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_REDEEM_FAILED")
	})
}
