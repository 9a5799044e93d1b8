package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrSessionExpired signals an irrecoverable authentication failure: the
// refresh token was missing, invalid or expired, and the credential store has
// been cleared. Callers must translate it into a redirect to the login flow.
var ErrSessionExpired = errors.New("session expired, please log in again")

// Kind classifies a server or transport failure.
type Kind string

const (
	KindAuth       Kind = "auth"       // invalid/expired access token
	KindPermission Kind = "permission" // valid session, insufficient role
	KindValidation Kind = "validation" // malformed input, duplicate booking
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict" // e.g. canceling an already-paid booking
	KindNetwork    Kind = "network"  // transport failure, retryable manually
	KindServer     Kind = "server"
)

// Error is a failed API call. Business-rule errors carry the server's message
// verbatim; the client never rewrites them.
type Error struct {
	Status  int
	Kind    Kind
	Message string
	// Fields holds per-field validation errors, e.g. {"visit_date": [...]}.
	Fields map[string][]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s (%d)", e.Kind, e.Status)
}

// KindOf returns the kind of an API error, or KindNetwork for transport
// failures that never produced a response.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// IsKind reports whether err is an API error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

// parseError builds an *Error from a non-2xx response. The server answers
// either {"error": "..."} / {"detail": "..."} or a DRF field-error map like
// {"visit_date": ["This date is already booked!"]}.
func parseError(resp *http.Response) *Error {
	apiErr := &Error{
		Status: resp.StatusCode,
		Kind:   kindForStatus(resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	for _, key := range []string{"error", "detail", "message"} {
		var msg string
		if raw, ok := payload[key]; ok && json.Unmarshal(raw, &msg) == nil {
			apiErr.Message = msg
			delete(payload, key)
			break
		}
	}

	for key, raw := range payload {
		var field []string
		if json.Unmarshal(raw, &field) == nil && len(field) > 0 {
			if apiErr.Fields == nil {
				apiErr.Fields = map[string][]string{}
			}
			apiErr.Fields[key] = field
		}
	}
	if apiErr.Message == "" {
		for key, field := range apiErr.Fields {
			apiErr.Message = fmt.Sprintf("%s: %s", key, field[0])
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: err.Error()}
}
