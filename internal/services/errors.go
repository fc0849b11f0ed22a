package services

import (
	"errors"
	"net/http"

	"github.com/feedgraph/apiserver/internal/validation"
)

// Error is a domain failure with the HTTP-style status reported to clients.
type Error struct {
	Message string
	Status  int
	Data    []validation.Violation
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrUserExists         = &Error{Message: "User Already Exists", Status: http.StatusUnprocessableEntity}
	ErrInvalidCredentials = &Error{Message: "Invalid Username or Password", Status: http.StatusUnauthorized}
	ErrNotAuthenticated   = &Error{Message: "Not Authenticated!!", Status: http.StatusUnauthorized}
	ErrInvalidUser        = &Error{Message: "Invalid User", Status: http.StatusUnauthorized}
	ErrPostNotFound       = &Error{Message: "Post not found", Status: http.StatusNotFound}
	ErrUserNotFound       = &Error{Message: "User not found", Status: http.StatusNotFound}
	ErrNotAuthorized      = &Error{Message: "Not Authorized", Status: http.StatusForbidden}
)

// InvalidInput wraps validation violations in a 422 error.
func InvalidInput(violations []validation.Violation) *Error {
	return &Error{Message: "Invalid Input", Status: http.StatusUnprocessableEntity, Data: violations}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
