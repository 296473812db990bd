package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTimeout is returned when an analysis request exceeds the configured deadline.
var ErrTimeout = errors.New("analysis request timed out")

// ServerAnalysisError is a non-2xx answer, or a 2xx answer whose payload could not be used.
type ServerAnalysisError struct {
	Status  int
	Message string
	Err     error // underlying cause for malformed payloads
}

func (e *ServerAnalysisError) Error() string {
	return fmt.Sprintf("analysis failed with status %d: %s", e.Status, e.Message)
}

func (e *ServerAnalysisError) Unwrap() error {
	return e.Err
}

// NetworkError is a transport failure: the backend never produced a response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("could not reach detection backend: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// errorBody is the optional failure payload of the backend.
type errorBody struct {
	Error  json.RawMessage `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

// errorMessage extracts a human-readable message from a failure body,
// falling back to the status text.
func errorMessage(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		for _, raw := range []json.RawMessage{eb.Error, eb.Detail} {
			if msg := rawMessage(raw); msg != "" {
				return msg
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}

// rawMessage returns a JSON string value as-is and any other non-null value as compact JSON.
func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}
