package security

// Event type constants for security audit logging. Using constants keeps
// event names consistent across the codebase and greppable in log storage.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when a new access token is issued to a client
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when an access token is refreshed using a refresh token
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token is revoked by the user or client
	EventTokenRevoked = "token_revoked"

	// EventTokenIntrospected is logged when a token is introspected
	EventTokenIntrospected = "token_introspected"

	// Authorization flow events

	// EventAuthorizationFlowStarted is logged when an authorization flow is initiated
	EventAuthorizationFlowStarted = "authorization_flow_started"

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeReplayed is logged when an already-redeemed code is presented again
	EventAuthorizationCodeReplayed = "authorization_code_replayed"

	// EventLoginRedirect is logged when an unauthenticated authorize request is sent to login
	EventLoginRedirect = "login_redirect"

	// EventStateReplayed is logged when a CSRF state token is consumed twice
	EventStateReplayed = "state_replayed"

	// Client registration events

	// EventClientRegistered is logged when a new OAuth client is registered
	EventClientRegistered = "client_registered"

	// Security violation events

	// EventAuthFailure is logged when a validation or authentication check fails
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventPKCEValidationFailed is logged when PKCE code_verifier validation fails
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventInvalidRedirect is logged when an unregistered redirect URI is requested
	EventInvalidRedirect = "invalid_redirect"

	// EventScopeEscalationAttempt is logged when a client requests scopes outside its registration
	EventScopeEscalationAttempt = "scope_escalation_attempt"

	// Session events

	// EventSessionCreated is logged when the session gate creates a session
	EventSessionCreated = "session_created"

	// EventSessionExpired is logged when the session gate lazily deletes an expired session
	EventSessionExpired = "session_expired"

	// EventSessionRenewed is logged when a session's sliding expiry is extended
	EventSessionRenewed = "session_renewed"
)
