package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotAuthenticated is returned before sending a request that needs a
// token when the session has none.
var ErrNotAuthenticated = errors.New("not signed in")

// NetworkError is returned when the API is unreachable or answers with a
// non-2xx status. StatusCode is 0 when no response was received.
type NetworkError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: server unreachable: %v", e.Op, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Unreachable reports whether the request never got a response.
func (e *NetworkError) Unreachable() bool { return e.StatusCode == 0 }

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.StatusCode == http.StatusUnauthorized
}

// HasCode reports whether err is an API error carrying the given error code.
func HasCode(err error, code string) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Code == code
}
