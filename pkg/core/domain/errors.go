package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrWeakPassword         = errors.New("password must be at least 6 characters")
	ErrPasswordMismatch     = errors.New("passwords do not match")
	ErrRegistrationRejected = errors.New("registration rejected")
	ErrSessionExpired       = errors.New("session expired")
	ErrNotFound             = errors.New("not found")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrClaimMergeFailed     = errors.New("claim merge failed")
)

// MinPasswordLength is the shortest password accepted on registration.
const MinPasswordLength = 6

// BackendError is a non-2xx reply from the backend.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Message)
}

// AuthError pairs a taxonomy kind with the backend's message, which is
// surfaced verbatim.
type AuthError struct {
	Err     error
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match a backend 404.
func (e *BackendError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}
