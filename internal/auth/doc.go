// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

// Package auth provides credential verification and session issuance for
// SkyNet Visitas.
//
// # Services
//
// Service types coordinate the credential flows:
//   - Service - login authentication with anti-enumeration and opportunistic
//     legacy-hash migration
//   - ResetService - forgotten-password flow (token minting, mail delivery,
//     token redemption)
//   - PasswordService - authenticated self-service and delegated password
//     changes
//
// Services are created with New*Service constructors that validate
// dependencies.
//
// # Tokens
//
// SessionIssuer mints and verifies bearer session tokens. ResetTokens mints
// and verifies single-purpose password-reset tokens; the two are never
// interchangeable, even when signed with the same secret, because reset
// tokens carry a mandatory type tag.
package auth
