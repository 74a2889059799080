// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// errorBody is the error response shape. Messages are the user-facing
// Spanish strings the front end already displays.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// statusFor maps a service error to an HTTP status and public message.
// Unknown codes collapse into a generic 500 so internals never leak.
func statusFor(err error) (int, string) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return http.StatusInternalServerError, "Error interno"
	}

	switch oopsErr.Code() {
	case "AUTH_INVALID_CREDENTIALS":
		return http.StatusUnauthorized, "Credenciales inválidas"
	case "AUTH_SESSION_INVALID":
		return http.StatusUnauthorized, "No autorizado"
	case "RESET_TOKEN_INVALID":
		// Two observable variants: parse/expiry failures vs a structurally
		// valid token with the wrong purpose or a dead subject.
		if strings.Contains(oopsErr.Error(), "expired") {
			return http.StatusUnauthorized, "Token inválido o expirado"
		}
		return http.StatusUnauthorized, "Token inválido"
	case "AUTH_CURRENT_PASSWORD":
		return http.StatusUnauthorized, "La contraseña actual es incorrecta"
	case "PASSWORD_TOO_SHORT":
		return http.StatusBadRequest, "La contraseña debe tener al menos 8 caracteres"
	case "PASSWORD_REUSE":
		return http.StatusBadRequest, "La nueva contraseña no puede ser igual a la anterior"
	case "CHANGE_FORBIDDEN":
		return http.StatusForbidden, "No tienes permiso para cambiar la contraseña de este usuario."
	case "TARGET_NOT_FOUND":
		return http.StatusNotFound, "Usuario destino no disponible"
	default:
		return http.StatusInternalServerError, "Error interno"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client went away
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	writeJSON(w, status, errorBody{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	})
}
