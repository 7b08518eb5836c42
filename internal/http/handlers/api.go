package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/parsakn/smartlight-client/internal/cache"
	"github.com/parsakn/smartlight-client/internal/failure"
	"github.com/parsakn/smartlight-client/internal/model"
	"github.com/parsakn/smartlight-client/internal/mutation"
	"github.com/parsakn/smartlight-client/internal/push"
	"github.com/parsakn/smartlight-client/internal/session"
)

// Engine is the synchronization engine the handlers drive.
type Engine interface {
	Authenticated() bool
	Username() string
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, req model.RegisterRequest) error
	Logout(ctx context.Context) error

	Homes(ctx context.Context) ([]model.Home, error)
	Rooms(ctx context.Context) ([]model.Room, error)
	Lamps(ctx context.Context) ([]model.Lamp, error)
	Dashboard(ctx context.Context) (model.Dashboard, error)
	CreateHome(ctx context.Context, in model.HomeInput) (model.HomeInput, error)
	CreateRoom(ctx context.Context, in model.RoomInput) (model.RoomInput, error)
	CreateLamp(ctx context.Context, in model.LampInput) (model.LampInput, error)

	ToggleLamp(ctx context.Context, id int64) (session.ToggleResult, error)
	SetLampStatus(ctx context.Context, id int64, status bool) (session.ToggleResult, error)
	MutationState(id int64) mutation.State
	SendDeviceCommand(ctx context.Context, id int64, on bool) error
	VoiceCommand(ctx context.Context, filename string, audio io.Reader) (model.VoiceCommandResult, error)

	Resync()
	Subscribe(fn func(cache.Event)) func()
	CollectionStatus() map[model.Kind]cache.Status
	PushConnected() bool
}

// API groups HTTP handlers and dependencies.
type API struct {
	engine Engine
	logger *slog.Logger
}

// New creates HTTP handlers with explicit dependencies.
func New(engine Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{engine: engine, logger: logger.With("component", "http")}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports liveness and whether a user is signed in.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"authenticated": a.engine.Authenticated(),
	})
}

// Status reports collection cache states and push connectivity.
func (a *API) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated":  a.engine.Authenticated(),
		"username":       a.engine.Username(),
		"collections":    a.engine.CollectionStatus(),
		"push_connected": a.engine.PushConnected(),
	})
}

// Refresh schedules a resync of every collection.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.engine.Resync()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// writeFailure classifies err and writes it with the matching status.
func (a *API) writeFailure(w http.ResponseWriter, err error, fallback string) {
	status, code, message := describe(err, fallback)
	if status >= http.StatusInternalServerError {
		a.logger.Warn("request failed", "code", code, "err", err)
	}
	writeError(w, status, code, message)
}

func describe(err error, fallback string) (int, string, string) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not_authenticated", failure.SessionExpired
	case errors.Is(err, mutation.ErrUnknownEntity):
		return http.StatusNotFound, "not_found", "Lamp not found. It may have been deleted."
	case errors.Is(err, mutation.ErrInProgress):
		return http.StatusConflict, "in_progress", "A switch for this lamp is already in progress."
	case errors.Is(err, session.ErrLampOffline):
		return http.StatusConflict, "offline", "Lamp is offline."
	case errors.Is(err, push.ErrNotConnected):
		return http.StatusServiceUnavailable, "push_unavailable", "Live connection is not established."
	}
	p := failure.Describe(err, fallback)
	return statusFor(p.Kind), string(p.Kind), p.Message
}

func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.KindAuthExpired:
		return http.StatusUnauthorized
	case failure.KindUnauthorized:
		return http.StatusForbidden
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindDeviceTimeout:
		return http.StatusGatewayTimeout
	case failure.KindValidationFailed:
		return http.StatusBadRequest
	case failure.KindNetworkUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
