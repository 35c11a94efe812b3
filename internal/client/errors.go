package client

import (
	"errors"
	"fmt"
)

// APIError is the normalized error for anything the remote services can do
// wrong. Status carries the HTTP status of a rejected request; Status 0 means
// the request never got a response at all (transport failure), so callers can
// tell "server rejected" from "server unreachable".
type APIError struct {
	Message string
	Status  int
	Code    string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("service unreachable: %s", e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// IsUnreachable reports whether err is a transport-level failure.
func IsUnreachable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 0
}

// ValidationError is a client-side pre-flight failure. It never results from
// a network round trip.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
