// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skynet-visitas/authd/internal/auth"
)

func TestHashPassword(t *testing.T) {
	hasher := auth.NewBcryptHasher(false)

	t.Run("produces valid hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.Error(t, err)
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewBcryptHasher(false)

	t.Run("correct password verifies", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("truncated bcrypt hash returns error", func(t *testing.T) {
		_, err := hasher.Verify("password", "$2a$10$tooshort")
		assert.Error(t, err)
	})
}

func TestVerifyPassword_LegacyPlaintext(t *testing.T) {
	t.Run("matches when legacy mode enabled", func(t *testing.T) {
		hasher := auth.NewBcryptHasher(true)

		ok, err := hasher.Verify("hunter22pass", "hunter22pass")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("mismatch when legacy mode enabled", func(t *testing.T) {
		hasher := auth.NewBcryptHasher(true)

		ok, err := hasher.Verify("wrongsecret", "hunter22pass")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("never matches when legacy mode disabled", func(t *testing.T) {
		hasher := auth.NewBcryptHasher(false)

		ok, err := hasher.Verify("hunter22pass", "hunter22pass")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestParseHashFormat(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   auth.HashFormat
	}{
		{"bcrypt 2a", "$2a$10$abcdefghijklmnopqrstuv", auth.FormatBcrypt},
		{"bcrypt 2b", "$2b$10$abcdefghijklmnopqrstuv", auth.FormatBcrypt},
		{"bcrypt 2y", "$2y$10$abcdefghijklmnopqrstuv", auth.FormatBcrypt},
		{"plaintext", "hunter22pass", auth.FormatLegacyPlaintext},
		{"empty", "", auth.FormatLegacyPlaintext},
		{"dollar but not bcrypt", "$argon2id$v=19$...", auth.FormatLegacyPlaintext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.ParseHashFormat(tt.stored))
		})
	}
}

func TestNeedsUpgrade(t *testing.T) {
	hasher := auth.NewBcryptHasher(true)

	t.Run("bcrypt does not need upgrade", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(hash))
	})

	t.Run("plaintext needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade("hunter22pass"))
	})
}
