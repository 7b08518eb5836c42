package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	StatusCode int
	// Text is set when the body is a bare string (JSON string or plain text).
	Text string
	// Detail is the DRF "detail" value; non-string details are kept as JSON.
	Detail string
	// Fields holds DRF field errors keyed by field name.
	Fields map[string][]string
	Raw    []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// NetworkError means no response was received at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

const maxErrorBody = 64 << 10

func newStatusError(resp *http.Response, body []byte) *StatusError {
	e := &StatusError{StatusCode: resp.StatusCode, Raw: body}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return e
	}

	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		e.Text = string(trimmed)
		return e
	}

	switch v := decoded.(type) {
	case string:
		e.Text = v
	case map[string]any:
		if detail, ok := v["detail"]; ok && !isEmptyJSON(detail) {
			if s, ok := detail.(string); ok {
				e.Detail = s
			} else if b, err := json.Marshal(detail); err == nil {
				e.Detail = string(b)
			}
		}
		for field, value := range v {
			if field == "detail" {
				continue
			}
			switch fv := value.(type) {
			case string:
				e.addField(field, fv)
			case []any:
				msgs := make([]string, 0, len(fv))
				for _, item := range fv {
					msgs = append(msgs, stringify(item))
				}
				e.addField(field, msgs...)
			}
		}
	}
	return e
}

func (e *StatusError) addField(field string, msgs ...string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msgs...)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.Trim(string(b), `"`)
}

func isEmptyJSON(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	}
	return false
}
