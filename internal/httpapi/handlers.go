// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/auth"
	"github.com/skynet-visitas/authd/pkg/errutil"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

type profileResponse struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type resetPasswordResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// changePasswordRequest serves both change paths. A present UserID selects
// the delegated path; otherwise the caller changes their own password and
// must prove the current one.
type changePasswordRequest struct {
	UserID          string `json:"userId,omitempty"`
	CurrentPassword string `json:"currentPassword,omitempty"`
	NewPassword     string `json:"newPassword"`
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return oops.Code("API_BAD_REQUEST").Wrap(err)
	}
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			StatusCode: http.StatusBadRequest,
			Message:    "Cuerpo de la solicitud inválido",
			Error:      http.StatusText(http.StatusBadRequest),
		})
		return
	}

	view, err := s.deps.Authenticator.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.countLogin(err)
		if !isCredentialError(err) {
			errutil.LogError(s.deps.Logger, "login failed", err)
		}
		writeError(w, err)
		return
	}

	token, err := s.deps.Sessions.Issue(view)
	if err != nil {
		s.countLogin(err)
		errutil.LogError(s.deps.Logger, "session issue failed", err)
		writeError(w, err)
		return
	}

	s.countLogin(nil)
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := sessionFrom(r.Context())
	if claims == nil {
		writeError(w, oops.Code("AUTH_SESSION_INVALID").Errorf("invalid session token"))
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
		Roles:  claims.Roles,
	})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	// A malformed body gets the same {ok:true} as an unknown email.
	_ = json.NewDecoder(r.Body).Decode(&req)

	result := s.deps.Resets.RequestReset(r.Context(), req.Email)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ResetRequestsTotal.Inc()
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, oops.Code("RESET_TOKEN_INVALID").Errorf("invalid token"))
		return
	}

	err := s.deps.Resets.RedeemReset(r.Context(), req.Token, req.NewPassword)
	if s.deps.Metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "denied"
		}
		s.deps.Metrics.ResetRedemptionsTotal.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resetPasswordResponse{OK: true, Message: "Contraseña actualizada"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := sessionFrom(r.Context())
	if claims == nil {
		writeError(w, oops.Code("AUTH_SESSION_INVALID").Errorf("invalid session token"))
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			StatusCode: http.StatusBadRequest,
			Message:    "Cuerpo de la solicitud inválido",
			Error:      http.StatusText(http.StatusBadRequest),
		})
		return
	}

	caller := auth.Caller{ID: claims.Subject, Roles: claims.Roles}

	var receipt *auth.ChangeReceipt
	var err error
	path := "self"
	if req.UserID != "" {
		path = "delegated"
		receipt, err = s.deps.Passwords.ChangeUserPassword(r.Context(), caller, req.UserID, req.NewPassword)
	} else {
		receipt, err = s.deps.Passwords.ChangeOwnPassword(r.Context(), caller, req.CurrentPassword, req.NewPassword)
	}

	if s.deps.Metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "denied"
		}
		s.deps.Metrics.PasswordChangesTotal.WithLabelValues(path, outcome).Inc()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// countLogin records a login attempt. nil means success.
func (s *Server) countLogin(err error) {
	if s.deps.Metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.deps.Metrics.LoginsTotal.WithLabelValues("success").Inc()
	case isCredentialError(err):
		s.deps.Metrics.LoginsTotal.WithLabelValues("denied").Inc()
	default:
		s.deps.Metrics.LoginsTotal.WithLabelValues("error").Inc()
	}
}

func isCredentialError(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == "AUTH_INVALID_CREDENTIALS"
}
