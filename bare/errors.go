package bare

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"syscall"

	"github.com/pkg/errors"
)

// Error codes sent in the "code" field of error responses.
const (
	CodeMissingBareHeader = "MISSING_BARE_HEADER"
	CodeInvalidBareHeader = "INVALID_BARE_HEADER"
	CodeForbiddenHeader   = "FORBIDDEN_BARE_HEADER"
	CodeUnknownRoute      = "UNKNOWN_BARE_ROUTE"
	CodeHostNotFound      = "HOST_NOT_FOUND"
	CodeConnRefused       = "CONNECTION_REFUSED"
	CodeConnTimeout       = "CONNECTION_TIMEOUT"
	CodeConnFailed        = "CONNECTION_FAILED"
)

// Error is the JSON body of every failed bare response.
type Error struct {
	status  int
	Code    string `json:"code"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + " (" + e.ID + "): " + e.Message
}

// Status is the HTTP status the error is sent with.
func (e *Error) Status() int {
	return e.status
}

func missingHeader(name string) *Error {
	return &Error{
		status:  http.StatusBadRequest,
		Code:    CodeMissingBareHeader,
		ID:      "request.headers." + name,
		Message: "Header was not specified.",
	}
}

func invalidHeader(name, message string) *Error {
	return &Error{
		status:  http.StatusBadRequest,
		Code:    CodeInvalidBareHeader,
		ID:      "request.headers." + name,
		Message: message,
	}
}

func forbiddenHeader(name, header string) *Error {
	return &Error{
		status:  http.StatusForbidden,
		Code:    CodeForbiddenHeader,
		ID:      "request.headers." + name,
		Message: "A forbidden header was passed: " + header,
	}
}

func unknownRoute() *Error {
	return &Error{
		status:  http.StatusNotFound,
		Code:    CodeUnknownRoute,
		ID:      "error.NotFoundError",
		Message: "Not found.",
	}
}

func writeError(w http.ResponseWriter, e *Error) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.status)
	_ = json.NewEncoder(w).Encode(e)
}

// connectionError classifies a failure to reach the remote.
func connectionError(err error) *Error {
	e := &Error{
		status:  http.StatusInternalServerError,
		Code:    CodeConnFailed,
		ID:      "response",
		Message: "The remote could not be reached.",
	}
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		e.Code = CodeHostNotFound
		e.ID = "request"
		e.Message = "The specified host could not be resolved."
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Code = CodeConnRefused
		e.Message = "The remote rejected the request."
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		e.Code = CodeConnTimeout
		e.Message = "The response timed out."
	}
	return e
}
