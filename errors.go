// Package belgie provides the protocol core of an OAuth 2.0 authorization
// server designed to be embedded in a larger authentication toolkit. It
// brokers trust from an existing first-party session to third-party clients
// through the authorization code + PKCE grant.
//
// The package itself holds the error taxonomy and the wire-level document
// types; the protocol engine lives in the server subpackage and persistence
// contracts in the storage subpackage.
package belgie

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeInvalidRedirectURI   = "invalid_redirect_uri"
	ErrorCodeInvalidState         = "invalid_state"
	ErrorCodeLoginRequired        = "login_required"
	ErrorCodeConfiguration        = "configuration_error"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
)

// AuthError is the root error type for every validation failure raised by
// the authorization server core. Callers can match the whole family with
// errors.As, or narrowly by Code. The HTTP-facing layer maps Status onto
// the response.
type AuthError struct {
	Code        string // OAuth error code (e.g., "invalid_grant")
	Description string // Human-readable error description
	Status      int    // Suggested HTTP status code
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is reports whether target carries the same OAuth error code. This lets
// callers match kinds with errors.Is without caring about descriptions.
func (e *AuthError) Is(target error) bool {
	var other *AuthError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewAuthError creates a new authorization error
func NewAuthError(code, description string, status int) *AuthError {
	return &AuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Constructors for the error kinds the core raises. Grant and PKCE failures
// deliberately share the invalid_grant code so a caller cannot tell which
// sub-check failed.
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidGrant indicates the authorization code, refresh token, or
	// PKCE verifier is invalid, expired, or replayed
	ErrInvalidGrant = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrInvalidScope indicates a requested scope is outside the client's registration
	ErrInvalidScope = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
	}

	// ErrInvalidRedirectURI indicates the redirect URI is not registered for the client
	ErrInvalidRedirectURI = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeInvalidRedirectURI, desc, http.StatusBadRequest)
	}

	// ErrInvalidState indicates an unknown, expired, or replayed CSRF state token
	ErrInvalidState = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeInvalidState, desc, http.StatusBadRequest)
	}

	// ErrLoginRequired indicates a protected operation was attempted without an active session
	ErrLoginRequired = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeLoginRequired, desc, http.StatusUnauthorized)
	}

	// ErrConfiguration indicates malformed settings or a missing required value
	ErrConfiguration = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeConfiguration, desc, http.StatusInternalServerError)
	}

	// ErrUnsupportedGrantType indicates the grant type is not supported
	ErrUnsupportedGrantType = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
)
