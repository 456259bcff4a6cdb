// Package storage defines the persistence interfaces used by the
// authorization server along with the record types they store. Two reference
// implementations exist: an in-memory store for development and tests, and a
// Valkey-backed store for multi-instance deployments.
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by storage implementations. The server maps these
// to protocol errors; callers must not surface them to OAuth clients
// directly.
var (
	// ErrClientNotFound is returned when a client ID is not registered.
	ErrClientNotFound = errors.New("client not found")

	// ErrStateNotFound is returned when a state token is unknown, already
	// consumed, or expired. One error for all three keeps the state store
	// from acting as an oracle.
	ErrStateNotFound = errors.New("authorization state not found")

	// ErrCodeNotFound is returned when an authorization code is unknown,
	// already consumed, or expired.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrTokenNotFound is returned when an access or refresh token is
	// unknown or expired.
	ErrTokenNotFound = errors.New("token not found")

	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")
)

// Client is a registered OAuth client.
type Client struct {
	ID string

	// SecretHash is the bcrypt hash of the client secret. Empty for
	// public clients.
	SecretHash []byte

	// RedirectURIs are the exact-match registered redirect URIs. At
	// least one is required.
	RedirectURIs []string

	// Scopes the client may request. Empty means the server default
	// scope only.
	Scopes []string

	// Public marks clients that authenticate with PKCE alone.
	Public bool

	Name      string
	CreatedAt time.Time
}

// AuthorizationState is a pending authorization request, keyed by the CSRF
// state token handed to the user agent. It carries everything needed to
// resume the flow after login.
type AuthorizationState struct {
	State               string
	ClientID            string
	RedirectURI         string
	RedirectURIExplicit bool
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string

	// CodeVerifier is held when this server acts as the client side of an
	// upstream flow and must prove possession at the callback.
	CodeVerifier string

	// ClientState is the state value the OAuth client supplied; it is
	// echoed back verbatim on the final redirect.
	ClientState string

	Resource  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AuthorizationCode is a single-use grant binding a user's consent to a
// client, a redirect URI, and a PKCE challenge.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	RedirectURIExplicit bool
	CodeChallenge       string
	CodeChallengeMethod string
	Scopes              []string
	UserID              string
	SessionID           string
	Resource            string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// AccessToken is an issued bearer token. Implementations are handed the
// storage key by the server; when token hashing is enabled the key is an
// HMAC of the token value, never the value itself.
type AccessToken struct {
	Key       string
	ClientID  string
	UserID    string
	SessionID string
	Scopes    []string
	Resource  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// RefreshToken is a long-lived credential for obtaining new access tokens.
type RefreshToken struct {
	Key       string
	ClientID  string
	UserID    string
	SessionID string
	Scopes    []string
	Resource  string
	CreatedAt time.Time
	ExpiresAt time.Time

	// RevokedAt makes the token permanently inactive regardless of
	// ExpiresAt when non-nil.
	RevokedAt *time.Time
}

// Session is a server-side login session with sliding expiry.
type Session struct {
	ID        string
	UserID    string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// ClientStore persists registered OAuth clients.
type ClientStore interface {
	SaveClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	DeleteClient(ctx context.Context, clientID string) error
}

// StateStore persists pending authorization states. ConsumeState is the only
// read path and it is destructive: a state token works exactly once.
type StateStore interface {
	SaveState(ctx context.Context, state *AuthorizationState) error

	// ConsumeState atomically fetches and deletes the state. Concurrent
	// calls for the same token must yield the record to at most one
	// caller; the rest get ErrStateNotFound. Expired states are treated
	// as absent.
	ConsumeState(ctx context.Context, state string) (*AuthorizationState, error)

	DeleteExpiredStates(ctx context.Context) error
}

// CodeStore persists authorization codes. ConsumeCode mirrors ConsumeState:
// atomic fetch-and-delete so a code redeems at most once.
type CodeStore interface {
	SaveCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeCode atomically fetches and deletes the code. Expired codes
	// are treated as absent.
	ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error)

	DeleteExpiredCodes(ctx context.Context) error
}

// TokenStore persists access and refresh tokens.
type TokenStore interface {
	SaveAccessToken(ctx context.Context, token *AccessToken) error
	GetAccessToken(ctx context.Context, key string) (*AccessToken, error)
	DeleteAccessToken(ctx context.Context, key string) error

	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// ConsumeRefreshToken atomically fetches and deletes the refresh
	// token so rotation hands the record to at most one caller.
	ConsumeRefreshToken(ctx context.Context, key string) (*RefreshToken, error)

	GetRefreshToken(ctx context.Context, key string) (*RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, key string) error

	DeleteExpiredTokens(ctx context.Context) error
}

// SessionStore persists login sessions. Expiry policy (sliding renewal,
// lazy deletion) lives in the session gate, not here.
type SessionStore interface {
	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteExpiredSessions(ctx context.Context) error
}

// Store combines all persistence interfaces. The server depends on this; the
// narrower interfaces exist so tests and partial backends can implement only
// what they need.
type Store interface {
	ClientStore
	StateStore
	CodeStore
	TokenStore
	SessionStore

	// Close releases backend resources and stops background cleanup.
	Close() error
}
