package failure

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/parsakn/smartlight-client/internal/api"
	"github.com/parsakn/smartlight-client/internal/model"
)

// Kind is the failure taxonomy shared by every caller of the REST client.
type Kind string

const (
	KindAuthExpired        Kind = "auth_expired"
	KindUnauthorized       Kind = "unauthorized"
	KindNotFound           Kind = "not_found"
	KindDeviceTimeout      Kind = "device_timeout"
	KindValidationFailed   Kind = "validation_failed"
	KindNetworkUnavailable Kind = "network_unavailable"
	KindUnknown            Kind = "unknown"
)

const (
	DefaultMessage      = "Something went wrong"
	UnreachableMessage  = "Cannot reach the server. Please check your internet connection and try again."
	ConnectionFailed    = "Connection failed. Check your internet and try again."
	SessionExpired      = "Session expired. Please log in again."
	defaultLampName     = "Lamp"
	defaultInvalidInput = "Invalid request"
)

// KindOf classifies err. nil is KindUnknown.
func KindOf(err error) Kind {
	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return KindNetworkUnavailable
	}
	var validationErr *model.ValidationError
	if errors.As(err, &validationErr) {
		return KindValidationFailed
	}
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) {
		return KindUnknown
	}
	switch statusErr.StatusCode {
	case http.StatusUnauthorized:
		return KindAuthExpired
	case http.StatusForbidden:
		return KindUnauthorized
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusGatewayTimeout:
		return KindDeviceTimeout
	case http.StatusBadRequest:
		return KindValidationFailed
	}
	if len(statusErr.Fields) > 0 {
		return KindValidationFailed
	}
	return KindUnknown
}

// Message renders err for a human. fallback is used when nothing more
// specific is available; "" selects DefaultMessage.
func Message(err error, fallback string) string {
	if fallback == "" {
		fallback = DefaultMessage
	}
	if err == nil {
		return fallback
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return UnreachableMessage
	}
	var validationErr *model.ValidationError
	if errors.As(err, &validationErr) {
		return FieldMessage(validationErr.Fields)
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Text != "":
			return statusErr.Text
		case statusErr.Detail != "":
			return statusErr.Detail
		case len(statusErr.Fields) > 0:
			return FieldMessage(statusErr.Fields)
		}
		return fmt.Sprintf("Request failed with status code %d", statusErr.StatusCode)
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// FieldMessage joins field errors as "field: a, b | other: c", ordered by
// field name.
func FieldMessage(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(fields[name], ", "))
	}
	return strings.Join(parts, " | ")
}

// LampToggleMessage is the copy shown when switching lampName failed.
func LampToggleMessage(err error, lampName string) string {
	if lampName == "" {
		lampName = defaultLampName
	}

	var statusErr *api.StatusError
	status := 0
	if errors.As(err, &statusErr) {
		status = statusErr.StatusCode
	}

	switch {
	case status == http.StatusGatewayTimeout:
		return fmt.Sprintf("%s didn't respond. The device may be offline or slow to respond. Please try again.", lampName)
	case status == http.StatusForbidden:
		return fmt.Sprintf("You don't have permission to control %s.", lampName)
	case status == http.StatusNotFound:
		return fmt.Sprintf("%s not found. It may have been deleted.", lampName)
	case status == http.StatusBadRequest:
		detail := statusErr.Detail
		if detail == "" {
			detail = defaultInvalidInput
		}
		return fmt.Sprintf("%s: %s", lampName, detail)
	case KindOf(err) == KindNetworkUnavailable:
		return ConnectionFailed
	case status == http.StatusUnauthorized:
		return SessionExpired
	}

	detail := "Unknown error"
	switch {
	case statusErr != nil && statusErr.Detail != "":
		detail = statusErr.Detail
	case statusErr != nil:
		detail = fmt.Sprintf("Request failed with status code %d", statusErr.StatusCode)
	case err != nil && err.Error() != "":
		detail = err.Error()
	}
	return fmt.Sprintf("Failed to toggle %s: %s", lampName, detail)
}

// ToggleSuccessMessage is the copy shown after the server confirmed a switch.
func ToggleSuccessMessage(lampName string, on bool) string {
	if lampName == "" {
		lampName = defaultLampName
	}
	state := "OFF"
	if on {
		state = "ON"
	}
	return fmt.Sprintf("%s turned %s", lampName, state)
}

// Payload is the JSON shape of a classified failure.
type Payload struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// Describe bundles kind, message and HTTP status of err.
func Describe(err error, fallback string) Payload {
	p := Payload{Kind: KindOf(err), Message: Message(err, fallback)}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		p.Status = statusErr.StatusCode
	}
	return p
}
