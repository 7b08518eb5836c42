package handlers

import (
	"net/http"

	"github.com/parsakn/smartlight-client/internal/model"
	"github.com/parsakn/smartlight-client/internal/session"
)

// Login signs in and persists the token pair.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := a.engine.Login(r.Context(), payload.Username, payload.Password); err != nil {
		a.writeFailure(w, err, session.LoginFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "username": payload.Username})
}

// Register creates an account and signs in with it.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := a.engine.Register(r.Context(), payload); err != nil {
		a.writeFailure(w, err, session.RegisterFailed)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "username": payload.Username})
}

// Logout forgets credentials and cached state.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Logout(r.Context()); err != nil {
		a.logger.Warn("logout did not clear persisted credentials", "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
