package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized matches any StatusError carrying 401 or 403.
var ErrUnauthorized = errors.New("api: credentials rejected")

// StatusError is returned for every non-2xx backend response.
type StatusError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("api: http %d: %s", e.Status, msg)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 and 403 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && isAuthFailure(e.Status)
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// backendMessage extracts the human readable part of an error body: the
// "message" field of a JSON object, a bare JSON string, or plain text.
func backendMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	var str string
	if err := json.Unmarshal(body, &str); err == nil {
		return strings.TrimSpace(str)
	}
	if json.Valid(body) {
		return ""
	}
	return trimmed
}
