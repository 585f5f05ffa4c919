package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/autosql/autosql/internal/auth"
	"github.com/autosql/autosql/internal/config"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func handleRegister(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Auth == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AUTH_NOT_CONFIGURED", "credential store is not configured", false, nil)
		return
	}

	var request credentialsRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid register request body", false, map[string]any{"details": err.Error()})
		return
	}

	if err := deps.Auth.Register(r.Context(), request.Username, request.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingCredentials):
			writeError(r.Context(), w, http.StatusBadRequest, "CREDENTIALS_REQUIRED", err.Error(), false, nil)
		case errors.Is(err, auth.ErrUserExists):
			writeError(r.Context(), w, http.StatusConflict, "USER_EXISTS", "username already exists", false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "CREDENTIAL_STORE_ERROR", "failed to register user", true, map[string]any{"details": err.Error()})
		}
		return
	}

	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "user registered")
	}
	writeJSON(w, http.StatusCreated, map[string]any{"username": strings.TrimSpace(request.Username), "status": "registered"})
}

func handleLogin(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Auth == nil || deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AUTH_NOT_CONFIGURED", "login is not configured", false, nil)
		return
	}

	var request credentialsRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid login request body", false, map[string]any{"details": err.Error()})
		return
	}

	if err := deps.Auth.Authenticate(r.Context(), request.Username, request.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingCredentials):
			writeError(r.Context(), w, http.StatusBadRequest, "CREDENTIALS_REQUIRED", err.Error(), false, nil)
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(r.Context(), w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password", false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "CREDENTIAL_STORE_ERROR", "failed to authenticate", true, map[string]any{"details": err.Error()})
		}
		return
	}

	sess := deps.Sessions.Create(strings.TrimSpace(request.Username))
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"token": sess.Token, "username": sess.Username})
}

func handleLogout(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeSessionExpired(w, r)
		return
	}
	if err := deps.Sessions.Delete(identity.Token); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "closing session engine failed", "error", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleMe(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(deps, r)
	if !ok {
		writeSessionExpired(w, r)
		return
	}
	response := map[string]any{"username": sess.Username, "logged_in_at": sess.CreatedAt}
	if info, ok := sess.Dataset(); ok {
		response["dataset"] = info.Filename
	}
	writeJSON(w, http.StatusOK, response)
}
