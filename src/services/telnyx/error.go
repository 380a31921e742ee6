package telnyx

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is returned when call control rejects an action.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`

	// Action is the call-control action that failed (answer, hangup, ...).
	Action string `json:"-"`

	Errors []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail is one entry of the API's error list.
type ErrorDetail struct {
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("telnyx: %s: HTTP %d", e.Action, e.StatusCode)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		msg := d.Title
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		if d.Code != "" {
			msg = d.Code + " " + msg
		}
		parts = append(parts, msg)
	}
	return fmt.Sprintf("telnyx: %s: HTTP %d: %s", e.Action, e.StatusCode, strings.Join(parts, "; "))
}

// AsAPIError returns err as an *APIError if it is one.
func AsAPIError(err error) (*APIError, bool) {
	var e *APIError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
