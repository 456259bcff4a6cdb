package server

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mplemay/belgie-sub001/instrumentation"
	"github.com/mplemay/belgie-sub001/internal/util"
	"github.com/mplemay/belgie-sub001/oauthutil"
	"github.com/mplemay/belgie-sub001/storage"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultPrefix               = "/oauth"
	DefaultClientID             = "belgie_client"
	DefaultScope                = "user"
	DefaultAuthorizationCodeTTL = 5 * time.Minute
	DefaultAccessTokenTTL       = time.Hour
	DefaultRefreshTokenTTL      = 30 * 24 * time.Hour
	DefaultStateTTL             = 10 * time.Minute
	DefaultCodeChallengeMethod  = "S256"
	DefaultSessionMaxAge        = 7 * 24 * time.Hour
	DefaultSessionUpdateAge     = 24 * time.Hour
	DefaultTokenPrefix          = "belgie_"
	DefaultIntrospectionRPS     = 10
	DefaultIntrospectionBurst   = 20
)

// Config holds the authorization server configuration. Validated once in
// New; treat it as immutable afterwards.
type Config struct {
	// Store is the persistence backend (required).
	Store storage.Store

	// RedirectURIs are the redirect URIs registered for the built-in
	// client (required, min 1). Exact-match comparison, no wildcards.
	RedirectURIs []string

	// BaseURL is the public base URL of the embedding application,
	// e.g. "https://example.com". Optional; without it no issuer is
	// derived and discovery documents cannot be built.
	BaseURL string

	// Prefix is the path prefix the embedding application mounts the
	// OAuth routes under. Default "/oauth".
	Prefix string

	// LoginURL is where unauthenticated authorize requests are sent.
	// Optional; when empty the authorize call fails with a login_required
	// error instead of redirecting.
	LoginURL string

	// ClientID identifies the built-in client seeded at startup.
	// Default "belgie_client".
	ClientID string

	// ClientSecret for the built-in client. Empty means a public client
	// relying on PKCE alone.
	ClientSecret string

	// DefaultScope is granted when a request names no scopes.
	// Default "user".
	DefaultScope string

	// AllowedScopes the built-in client may request. Defaults to
	// [DefaultScope].
	AllowedScopes []string

	AuthorizationCodeTTL time.Duration
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	StateTTL             time.Duration

	// CodeChallengeMethod is the PKCE method. "S256" is the only
	// supported value.
	CodeChallengeMethod string

	SessionMaxAge    time.Duration
	SessionUpdateAge time.Duration

	// TokenPrefix namespaces issued opaque tokens, e.g. "belgie_".
	TokenPrefix string

	// TokenHashSecret, when set, causes tokens to be persisted under
	// their HMAC-SHA256 hash rather than their raw value.
	TokenHashSecret string

	// ResourceURL identifies the protected resource in RFC 9728
	// metadata and in the aud claim of introspection responses.
	ResourceURL string

	// IntrospectionRPS and IntrospectionBurst bound per-client
	// introspection traffic. Defaults 10 and 20.
	IntrospectionRPS   int
	IntrospectionBurst int

	// DisableAuditLog turns off security audit logging.
	DisableAuditLog bool

	// Logger for structured logging. Default slog.Default().
	Logger *slog.Logger

	// Instrumentation is the optional OpenTelemetry wiring.
	Instrumentation *instrumentation.Instrumentation
}

// applyDefaults fills zero fields with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.DefaultScope == "" {
		c.DefaultScope = DefaultScope
	}
	if len(c.AllowedScopes) == 0 {
		c.AllowedScopes = []string{c.DefaultScope}
	}
	if c.AuthorizationCodeTTL == 0 {
		c.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.StateTTL == 0 {
		c.StateTTL = DefaultStateTTL
	}
	if c.CodeChallengeMethod == "" {
		c.CodeChallengeMethod = DefaultCodeChallengeMethod
	}
	if c.SessionMaxAge == 0 {
		c.SessionMaxAge = DefaultSessionMaxAge
	}
	if c.SessionUpdateAge == 0 {
		c.SessionUpdateAge = DefaultSessionUpdateAge
	}
	if c.TokenPrefix == "" {
		c.TokenPrefix = DefaultTokenPrefix
	}
	if c.IntrospectionRPS == 0 {
		c.IntrospectionRPS = DefaultIntrospectionRPS
	}
	if c.IntrospectionBurst == 0 {
		c.IntrospectionBurst = DefaultIntrospectionBurst
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	// Trailing slashes would otherwise leak into derived issuer and aud
	// values and break exact-match comparisons.
	c.BaseURL = util.NormalizeURL(c.BaseURL)
	c.ResourceURL = util.NormalizeURL(c.ResourceURL)
}

// validate checks the configuration after defaults are applied.
func (c *Config) validate() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if len(c.RedirectURIs) == 0 {
		return fmt.Errorf("at least one redirect URI is required")
	}
	for _, uri := range c.RedirectURIs {
		parsed, err := url.Parse(uri)
		if err != nil || !parsed.IsAbs() {
			return fmt.Errorf("redirect URI %q is not an absolute URI", uri)
		}
	}
	if c.CodeChallengeMethod != DefaultCodeChallengeMethod {
		return fmt.Errorf("unsupported code challenge method %q: only S256 is supported", c.CodeChallengeMethod)
	}
	if c.BaseURL != "" {
		parsed, err := url.Parse(c.BaseURL)
		if err != nil || !parsed.IsAbs() {
			return fmt.Errorf("base URL %q is not an absolute URL", c.BaseURL)
		}
	}
	if c.SessionUpdateAge >= c.SessionMaxAge {
		return fmt.Errorf("session update age must be shorter than session max age")
	}
	if !strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("prefix %q must start with a slash", c.Prefix)
	}
	return nil
}

// IssuerURL derives the issuer identifier from the base URL: the auth mount
// point followed by the OAuth prefix. Empty when no base URL is configured.
func (c *Config) IssuerURL() string {
	if c.BaseURL == "" {
		return ""
	}
	return oauthutil.JoinURL(c.BaseURL, "auth"+c.Prefix)
}
