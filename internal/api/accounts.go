package api

import (
	"errors"
	"net/http"

	"github.com/nlsql/nlsql/internal/users"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func handleRegister(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Accounts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ACCOUNTS_NOT_CONFIGURED", "user accounts are not configured", false, nil)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid register request body", false, map[string]any{"details": err.Error()})
		return
	}

	if _, err := deps.Accounts.Register(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidInput):
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CREDENTIALS_INPUT", err.Error(), false, nil)
		case errors.Is(err, users.ErrUserExists):
			writeError(r.Context(), w, http.StatusConflict, "USER_EXISTS", "username is already registered", false, nil)
		default:
			if deps.Logger != nil {
				deps.Logger.ErrorContext(r.Context(), "register user failed", "error", err)
			}
			writeError(r.Context(), w, http.StatusInternalServerError, "REGISTER_FAILED", "failed to register user", true, nil)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered successfully"})
}

func handleLogin(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Accounts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ACCOUNTS_NOT_CONFIGURED", "user accounts are not configured", false, nil)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid login request body", false, map[string]any{"details": err.Error()})
		return
	}

	session, err := deps.Accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			writeError(r.Context(), w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", false, nil)
			return
		}
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "login failed", "error", err)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "LOGIN_FAILED", "failed to log in", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Login successful",
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}
