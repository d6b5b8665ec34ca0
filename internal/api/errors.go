package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failed orchestrator call: the HTTP status plus the detail
// string extracted from the response body.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("orchestrator returned %d: %s", e.Status, e.Detail)
}

// IsAuthError reports whether err is a 401/403 transport error.
func IsAuthError(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// IsNotFound reports whether err is a 404 transport error.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
