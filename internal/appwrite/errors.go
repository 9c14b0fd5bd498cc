package appwrite

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a failure reported by the Appwrite API.
type Error struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("appwrite: %s (status %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("appwrite: %s (status %d, %s)", e.Message, e.Code, e.Type)
}

// IsStatus reports whether err is an *Error carrying the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == status
}

// IsUnauthorized reports whether the remote rejected the caller's credentials or session.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

func decodeError(status int, body []byte) error {
	apiErr := &Error{Code: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	// the body code is advisory; the transport status is authoritative
	apiErr.Code = status
	return apiErr
}
