package handlers

import (
	"errors"
	"net/http"

	"github.com/parsakn/smartlight-client/internal/session"
)

const maxVoiceUpload = 10 << 20

type statusPayload struct {
	Status *bool `json:"status"`
}

// ToggleLamp flips a lamp and reports the toast shown for the outcome.
func (a *API) ToggleLamp(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID)
	if !ok {
		return
	}
	result, err := a.engine.ToggleLamp(r.Context(), id)
	a.writeToggle(w, result, err)
}

// SetLampStatus switches a lamp to the requested state.
func (a *API) SetLampStatus(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID)
	if !ok {
		return
	}
	var payload statusPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Status == nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "status is required")
		return
	}
	result, err := a.engine.SetLampStatus(r.Context(), id, *payload.Status)
	a.writeToggle(w, result, err)
}

// LampMutation reports where the last switch of a lamp stands.
func (a *API) LampMutation(w http.ResponseWriter, _ *http.Request, rawID string) {
	id, ok := parseID(w, rawID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": a.engine.MutationState(id)})
}

// LampCommand switches a lamp over the live socket. The new state arrives
// later as a push event.
func (a *API) LampCommand(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID)
	if !ok {
		return
	}
	var payload statusPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Status == nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "status is required")
		return
	}
	if err := a.engine.SendDeviceCommand(r.Context(), id, *payload.Status); err != nil {
		a.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// VoiceCommand forwards an uploaded recording in the "audio" form field.
func (a *API) VoiceCommand(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVoiceUpload)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "audio file is required")
		return
	}
	defer file.Close()

	result, err := a.engine.VoiceCommand(r.Context(), header.Filename, file)
	if err != nil {
		a.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) writeToggle(w http.ResponseWriter, result session.ToggleResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}
	status, code, message := describe(err, "")
	if result.Message != "" {
		message = result.Message
	}
	if errors.Is(err, session.ErrLampOffline) || status >= http.StatusInternalServerError {
		a.logger.Info("lamp switch failed", "lamp_id", result.Lamp.ID, "code", code, "err", err)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
		"lamp": result.Lamp,
	})
}
