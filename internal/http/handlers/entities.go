package handlers

import (
	"net/http"

	"github.com/parsakn/smartlight-client/internal/model"
	"github.com/parsakn/smartlight-client/internal/session"
)

func (a *API) ListHomes(w http.ResponseWriter, r *http.Request) {
	items, err := a.engine.Homes(r.Context())
	if err != nil {
		a.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) ListRooms(w http.ResponseWriter, r *http.Request) {
	items, err := a.engine.Rooms(r.Context())
	if err != nil {
		a.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) ListLamps(w http.ResponseWriter, r *http.Request) {
	items, err := a.engine.Lamps(r.Context())
	if err != nil {
		a.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Dashboard returns homes with their rooms and lamps nested.
func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := a.engine.Dashboard(r.Context())
	if err != nil {
		a.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (a *API) CreateHome(w http.ResponseWriter, r *http.Request) {
	var payload model.HomeInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	out, err := a.engine.CreateHome(r.Context(), payload)
	if err != nil {
		a.writeFailure(w, err, session.CreateHomeFailed)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var payload model.RoomInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	out, err := a.engine.CreateRoom(r.Context(), payload)
	if err != nil {
		a.writeFailure(w, err, session.CreateRoomFailed)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) CreateLamp(w http.ResponseWriter, r *http.Request) {
	var payload model.LampInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	out, err := a.engine.CreateLamp(r.Context(), payload)
	if err != nil {
		a.writeFailure(w, err, session.CreateLampFailed)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}
