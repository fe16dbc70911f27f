package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNetwork marks transport failures, as opposed to errors reported by the
// backend.
var ErrNetwork = errors.New("network error: unable to connect to server")

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP error! status: %d", e.Status)
	}
	return e.Message
}

// IsNotFound reports whether err is a 404 from the backend, or a backend
// message saying the resource was not found.
func IsNotFound(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusNotFound || strings.Contains(strings.ToLower(apiErr.Message), "not found")
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

func newNetworkError(err error) error {
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// UserMessage is the text to show a shopper for err: the backend message
// when there is one, a connectivity hint for transport failures.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Error()
	case IsNetwork(err):
		return "unable to connect to server"
	default:
		return err.Error()
	}
}
