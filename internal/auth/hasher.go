// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the cost the legacy system used, so hashes stay
// interchangeable with records written before this service existed.
const bcryptCost = 10

// ErrEmptySecret is returned when attempting to hash an empty secret.
var ErrEmptySecret = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// HashFormat identifies how a stored credential value is encoded.
type HashFormat int

const (
	// FormatBcrypt is the modern adaptive format. Self-identifying by the
	// "$2" PHC prefix ($2a$, $2b$, $2y$).
	FormatBcrypt HashFormat = iota

	// FormatLegacyPlaintext is a pre-migration value stored as the secret
	// itself. Only comparable when legacy mode is explicitly enabled.
	FormatLegacyPlaintext
)

// ParseHashFormat classifies a stored credential value by its prefix.
func ParseHashFormat(stored string) HashFormat {
	if strings.HasPrefix(stored, "$2") {
		return FormatBcrypt
	}
	return FormatLegacyPlaintext
}

// PasswordHasher provides one-way credential hashing and verification.
type PasswordHasher interface {
	// Hash produces a bcrypt hash of the secret.
	Hash(secret string) (string, error)

	// Verify checks the secret against a stored value, dispatching on the
	// stored value's format. Returns (true, nil) on match, (false, nil) on
	// mismatch, or an error when the stored value is unusable.
	Verify(secret, stored string) (bool, error)

	// NeedsUpgrade returns true if the stored value is not in the modern
	// bcrypt format and should be re-hashed on the next successful login.
	NeedsUpgrade(stored string) bool
}

// BcryptHasher implements PasswordHasher using bcrypt, with an optional,
// configuration-gated fallback for legacy plaintext records.
type BcryptHasher struct {
	allowLegacyPlaintext bool
	cost                 int
}

// NewBcryptHasher creates a BcryptHasher. allowLegacyPlaintext enables
// byte-equality comparison against plaintext-stored records; it must stay
// disabled once all records have migrated.
func NewBcryptHasher(allowLegacyPlaintext bool) *BcryptHasher {
	return &BcryptHasher{
		allowLegacyPlaintext: allowLegacyPlaintext,
		cost:                 bcryptCost,
	}
}

// Hash produces a bcrypt hash of the secret.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(hash), nil
}

// Verify checks the secret against a stored value.
func (h *BcryptHasher) Verify(secret, stored string) (bool, error) {
	switch ParseHashFormat(stored) {
	case FormatBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	case FormatLegacyPlaintext:
		if !h.allowLegacyPlaintext {
			// Legacy records are unverifiable with the fallback disabled.
			return false, nil
		}
		return subtle.ConstantTimeCompare([]byte(secret), []byte(stored)) == 1, nil
	}
	return false, nil
}

// NeedsUpgrade returns true if the stored value is not bcrypt.
func (h *BcryptHasher) NeedsUpgrade(stored string) bool {
	return ParseHashFormat(stored) != FormatBcrypt
}
