package session

import (
	"context"
	"errors"

	"github.com/parsakn/smartlight-client/internal/failure"
	"github.com/parsakn/smartlight-client/internal/model"
	"github.com/parsakn/smartlight-client/internal/mutation"
)

// ToggleResult is the outcome of a lamp switch as shown to the user.
type ToggleResult struct {
	Lamp    model.Lamp   `json:"lamp"`
	OK      bool         `json:"ok"`
	Kind    failure.Kind `json:"kind,omitempty"`
	Message string       `json:"message"`
}

// ToggleLamp flips the lamp's status. Offline lamps and lamps with a switch
// in flight are rejected before anything is sent.
func (s *Session) ToggleLamp(ctx context.Context, id int64) (ToggleResult, error) {
	lamp, err := s.controllableLamp(ctx, id)
	if err != nil {
		return ToggleResult{Lamp: lamp, Kind: failure.KindOf(err), Message: rejectMessage(err, lamp)}, err
	}
	return s.switchLamp(ctx, lamp, !lamp.Status)
}

// SetLampStatus switches the lamp to status.
func (s *Session) SetLampStatus(ctx context.Context, id int64, status bool) (ToggleResult, error) {
	lamp, err := s.controllableLamp(ctx, id)
	if err != nil {
		return ToggleResult{Lamp: lamp, Kind: failure.KindOf(err), Message: rejectMessage(err, lamp)}, err
	}
	return s.switchLamp(ctx, lamp, status)
}

func (s *Session) controllableLamp(ctx context.Context, id int64) (model.Lamp, error) {
	if !s.Authenticated() {
		return model.Lamp{}, ErrNotAuthenticated
	}
	if _, err := s.cache.Lamps.Load(ctx); err != nil {
		return model.Lamp{}, err
	}
	lamp, ok := s.cache.Lamps.Snapshot(id)
	if !ok {
		return model.Lamp{}, mutation.ErrUnknownEntity
	}
	if !lamp.Connection {
		return lamp, ErrLampOffline
	}
	if s.lamps.InProgress(id) {
		return lamp, mutation.ErrInProgress
	}
	return lamp, nil
}

func (s *Session) switchLamp(ctx context.Context, lamp model.Lamp, status bool) (ToggleResult, error) {
	updated, err := s.lamps.SetLampStatus(ctx, lamp.ID, status)
	if err != nil {
		if errors.Is(err, mutation.ErrInProgress) || errors.Is(err, mutation.ErrUnknownEntity) {
			return ToggleResult{Lamp: lamp, Message: rejectMessage(err, lamp)}, err
		}
		s.report("toggle_lamp", err)
		current, _ := s.cache.Lamps.Snapshot(lamp.ID)
		return ToggleResult{
			Lamp:    current,
			Kind:    failure.KindOf(err),
			Message: failure.LampToggleMessage(err, lamp.Name),
		}, err
	}
	return ToggleResult{
		Lamp:    updated,
		OK:      true,
		Message: failure.ToggleSuccessMessage(updated.Name, updated.Status),
	}, nil
}

func rejectMessage(err error, lamp model.Lamp) string {
	name := lamp.Name
	if name == "" {
		name = "Lamp"
	}
	switch {
	case errors.Is(err, ErrLampOffline):
		return name + " is offline."
	case errors.Is(err, mutation.ErrInProgress):
		return name + " is already switching."
	case errors.Is(err, mutation.ErrUnknownEntity):
		return "Lamp not found. It may have been deleted."
	case errors.Is(err, ErrNotAuthenticated):
		return failure.SessionExpired
	}
	return failure.Message(err, "")
}

// MutationState reports the switch state of lamp id.
func (s *Session) MutationState(id int64) mutation.State {
	return s.lamps.State(id)
}

// PendingSwitches lists lamp switches awaiting the server.
func (s *Session) PendingSwitches() []mutation.Pending[model.Lamp] {
	return s.lamps.Pending()
}

// SendDeviceCommand switches a lamp over the push socket instead of REST.
// The resulting state arrives as a push message.
func (s *Session) SendDeviceCommand(ctx context.Context, id int64, on bool) error {
	lamp, err := s.controllableLamp(ctx, id)
	if err != nil {
		return err
	}
	return s.push.SendCommand(lamp.Token, on)
}
