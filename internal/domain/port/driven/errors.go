package driven

import (
	"errors"
	"fmt"
)

// ErrNoCredentials is returned when a token refresh is attempted but neither
// in-memory nor persisted credentials are available.
var ErrNoCredentials = errors.New("no credentials available for token refresh")

// AuthError is returned when the vendor login endpoint rejects the credential
// exchange or cannot be reached.
type AuthError struct {
	StatusCode int // 0 when the request never got a response
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("authentication failed: %s", e.Message)
	}
	return fmt.Sprintf("authentication failed: %d %s", e.StatusCode, e.Message)
}

// FetchError is returned when a data endpoint responds with a non-2xx status
// or the request fails.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fetch %s failed: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("fetch %s failed: %d %s", e.Endpoint, e.StatusCode, e.Message)
}
