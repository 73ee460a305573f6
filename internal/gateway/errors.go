package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

// Codes added on top of the store taxonomy.
const (
	CodeTenantModeMismatch = "TENANT_MODE_MISMATCH"
	CodeProtocolVersion    = "PROTOCOL_VERSION"
	CodeUnavailable        = "UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

// Error is a query failure in the shape returned to clients. It doubles as
// the JSON response body.
type Error struct {
	// Status is the HTTP status the error maps to.
	Status int `json:"-"`

	Code    string `json:"code"`
	Message string `json:"message"`

	// Set on protocol version rejections only.
	RequestedProtocol *uint32 `json:"requested_protocol,omitempty"`
	GridProtocol      *uint32 `json:"grid_protocol,omitempty"`
	GridstateVersion  string  `json:"gridstate_version,omitempty"`

	// Err is the underlying failure. It is never rendered.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError converts any error into an *Error. Unrecognized errors become a
// 500 with a generic message.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error", Err: err}
}

// BadRequest builds a 400 for malformed request parameters.
func BadRequest(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: string(store.CodeInvalidInput), Message: fmt.Sprintf(format, args...)}
}

// notFoundMessage names the key the way clients address the entity.
func notFoundMessage(kind model.Kind, key string) string {
	switch kind {
	case model.KindAgent:
		return "Could not find agent with public key: " + key
	case model.KindSchema:
		return "Could not find schema with name: " + key
	}
	return fmt.Sprintf("Could not find %s with id: %s", kind, key)
}

// translate maps a store error onto the client taxonomy. Store messages can
// name tables and columns, so only input errors pass their message through.
func translate(kind model.Kind, key string, err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}

	switch {
	case store.IsNotFound(err):
		return &Error{Status: http.StatusNotFound, Code: string(store.CodeNotFound), Message: notFoundMessage(kind, key), Err: err}
	case store.CodeOf(err) == store.CodeInvalidInput:
		msg := "Invalid request"
		var se *store.Error
		if errors.As(err, &se) && se.Message != "" {
			msg = se.Message
		}
		return &Error{Status: http.StatusBadRequest, Code: string(store.CodeInvalidInput), Message: msg, Err: err}
	case store.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		return &Error{Status: http.StatusServiceUnavailable, Code: CodeUnavailable, Message: "Database is unavailable, try again later", Err: err}
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error", Err: err}
}
