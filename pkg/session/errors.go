package session

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoTokensInSession   = errors.New("no tokens in session")
	ErrNoIdentity          = errors.New("no identity")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrNoSession           = errors.New("no session")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrNotCallback         = errors.New("location is not an authorization callback")
)

// ProviderError is an OAuth2 error reported by the identity provider.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "identity provider error: " + e.Code
	}

	return fmt.Sprintf("identity provider error: %s: %s", e.Code, e.Description)
}

// StatusError reports an HTTP response status returned by an API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsCriticalAuthError reports whether err means the session can no longer be used.
func IsCriticalAuthError(err error) bool {
	if errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrNoSession) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusUnauthorized
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Code == "invalid_grant"
	}

	return false
}
