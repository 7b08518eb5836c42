package failure

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parsakn/smartlight-client/internal/api"
	"github.com/parsakn/smartlight-client/internal/model"
)

func statusErr(code int) *api.StatusError {
	return &api.StatusError{StatusCode: code}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("x"), KindUnknown},
		{"network", &api.NetworkError{Op: "GET", Err: errors.New("refused")}, KindNetworkUnavailable},
		{"wrapped network", fmt.Errorf("load: %w", &api.NetworkError{Err: errors.New("eof")}), KindNetworkUnavailable},
		{"401", statusErr(http.StatusUnauthorized), KindAuthExpired},
		{"403", statusErr(http.StatusForbidden), KindUnauthorized},
		{"404", statusErr(http.StatusNotFound), KindNotFound},
		{"504", statusErr(http.StatusGatewayTimeout), KindDeviceTimeout},
		{"400", statusErr(http.StatusBadRequest), KindValidationFailed},
		{"422 fields", &api.StatusError{StatusCode: 422, Fields: map[string][]string{"name": {"bad"}}}, KindValidationFailed},
		{"500", statusErr(http.StatusInternalServerError), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessagePrecedence(t *testing.T) {
	assert.Equal(t, UnreachableMessage, Message(&api.NetworkError{Err: errors.New("x")}, ""))
	assert.Equal(t, "boom", Message(&api.StatusError{StatusCode: 500, Text: "boom", Detail: "ignored"}, ""))
	assert.Equal(t, "Not allowed", Message(&api.StatusError{StatusCode: 403, Detail: "Not allowed"}, ""))
	assert.Equal(t,
		"name: required, too short | room: invalid",
		Message(&api.StatusError{StatusCode: 400, Fields: map[string][]string{
			"room": {"invalid"},
			"name": {"required", "too short"},
		}}, ""),
	)
	assert.Equal(t, "Request failed with status code 500", Message(statusErr(500), "Failed to create home"))
	assert.Equal(t, "oops", Message(errors.New("oops"), ""))
	assert.Equal(t, DefaultMessage, Message(nil, ""))
	assert.Equal(t, "custom", Message(nil, "custom"))
}

func TestLampToggleMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"device timeout", statusErr(504), "Desk didn't respond. The device may be offline or slow to respond. Please try again."},
		{"forbidden", statusErr(403), "You don't have permission to control Desk."},
		{"not found", statusErr(404), "Desk not found. It may have been deleted."},
		{"bad request with detail", &api.StatusError{StatusCode: 400, Detail: "Lamp is offline"}, "Desk: Lamp is offline"},
		{"bad request without detail", statusErr(400), "Desk: Invalid request"},
		{"network", &api.NetworkError{Err: errors.New("refused")}, ConnectionFailed},
		{"expired", statusErr(401), SessionExpired},
		{"other with detail", &api.StatusError{StatusCode: 500, Detail: "MQTT down"}, "Failed to toggle Desk: MQTT down"},
		{"other status", statusErr(502), "Failed to toggle Desk: Request failed with status code 502"},
		{"plain error", errors.New("kaput"), "Failed to toggle Desk: kaput"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LampToggleMessage(tt.err, "Desk"))
		})
	}
}

func TestLampToggleMessageDefaultsName(t *testing.T) {
	assert.Equal(t, "Lamp not found. It may have been deleted.", LampToggleMessage(statusErr(404), ""))
}

func TestToggleSuccessMessage(t *testing.T) {
	assert.Equal(t, "Desk turned ON", ToggleSuccessMessage("Desk", true))
	assert.Equal(t, "Lamp turned OFF", ToggleSuccessMessage("", false))
}

func TestDescribe(t *testing.T) {
	got := Describe(&api.StatusError{StatusCode: 504, Detail: "Device did not respond"}, "")
	assert.Equal(t, Payload{Kind: KindDeviceTimeout, Message: "Device did not respond", Status: 504}, got)
}

func TestValidationErrorIsClassified(t *testing.T) {
	err := &model.ValidationError{Fields: map[string][]string{"password2": {"Passwords must match"}}}
	assert.Equal(t, KindValidationFailed, KindOf(err))
	assert.Equal(t, "password2: Passwords must match", Message(err, ""))
}
