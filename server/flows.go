package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	belgie "github.com/mplemay/belgie-sub001"
	"github.com/mplemay/belgie-sub001/instrumentation"
	"github.com/mplemay/belgie-sub001/oauthutil"
	"github.com/mplemay/belgie-sub001/security"
	"github.com/mplemay/belgie-sub001/storage"
)

// PKCE verifier length bounds per RFC 7636.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// AuthorizeRequest carries the parameters of an authorization request after
// HTTP-level decoding.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Resource            string

	// SessionID identifies the resource owner's first-party session, if
	// any. Empty or expired sessions send the flow to login.
	SessionID string
}

// AuthorizeResult is the outcome of an authorization request: a redirect
// either back to the client carrying a code, or to the login flow.
type AuthorizeResult struct {
	// RedirectURL is where the user agent should be sent (HTTP 302).
	RedirectURL string

	// LoginRequired is true when RedirectURL points at the login flow
	// rather than the client's redirect URI.
	LoginRequired bool

	// State, on the login path, is the freshly minted state token that
	// resumes the flow via CompleteLogin.
	State string
}

// ExchangeRequest carries the parameters of an authorization-code token
// request.
type ExchangeRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CodeVerifier string
}

// Authorize runs the authorization endpoint logic. With an active session it
// mints a single-use code and returns a redirect to the client's URI
// carrying code and the caller's state verbatim. Without one it persists the
// validated request under a fresh state token and directs to the login flow.
func (s *Server) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResult, error) {
	ctx, span := s.startSpan(ctx, "server.Authorize")
	defer endSpan(span)

	if req.State == "" {
		return nil, belgie.ErrInvalidRequest("missing state parameter")
	}

	client, err := s.getClient(ctx, req.ClientID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	redirectURI, explicit, err := s.ValidateRedirectURI(client, req.RedirectURI)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	scopes, err := s.ValidateScope(client, req.Scope)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	if scopes == nil {
		scopes = []string{s.config.DefaultScope}
	}

	if req.CodeChallenge == "" {
		return nil, belgie.ErrInvalidRequest("missing code_challenge")
	}
	method := req.CodeChallengeMethod
	if method == "" {
		method = s.config.CodeChallengeMethod
	}
	if method != "S256" {
		return nil, belgie.ErrInvalidRequest("unsupported code_challenge_method: only S256 is supported")
	}

	if s.metrics != nil {
		s.metrics.RecordAuthorizationStarted(ctx, client.ID)
	}
	s.auditor.LogEvent(security.Event{
		Type:     security.EventAuthorizationFlowStarted,
		ClientID: client.ID,
		Details:  map[string]any{"scope": strings.Join(scopes, " ")},
	})

	session, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	if session == nil {
		return s.redirectToLogin(ctx, client, redirectURI, explicit, scopes, method, req)
	}

	redirect, err := s.issueCodeRedirect(ctx, client.ID, redirectURI, explicit, scopes,
		req.CodeChallenge, method, req.Resource, req.State, session)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return &AuthorizeResult{RedirectURL: redirect}, nil
}

// redirectToLogin persists the validated request parameters under a fresh
// state token and points the user agent at the login flow.
func (s *Server) redirectToLogin(ctx context.Context, client *storage.Client, redirectURI string, explicit bool, scopes []string, method string, req *AuthorizeRequest) (*AuthorizeResult, error) {
	if s.config.LoginURL == "" {
		return nil, belgie.ErrLoginRequired("authentication required")
	}

	record := &storage.AuthorizationState{
		ClientID:            client.ID,
		RedirectURI:         redirectURI,
		RedirectURIExplicit: explicit,
		Scopes:              scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		ClientState:         req.State,
		Resource:            req.Resource,
	}
	if err := s.saveState(ctx, record); err != nil {
		return nil, err
	}

	loginURL, err := oauthutil.ComposeRedirect(s.config.LoginURL, map[string]string{
		"state": record.State,
	})
	if err != nil {
		return nil, belgie.ErrConfiguration("invalid login URL")
	}

	s.auditor.LogEvent(security.Event{
		Type:     security.EventLoginRedirect,
		ClientID: client.ID,
	})

	return &AuthorizeResult{
		RedirectURL:   loginURL,
		LoginRequired: true,
		State:         record.State,
	}, nil
}

// CompleteLogin resumes an authorization flow after the login collaborator
// has established a session. The state token is consumed exactly once; the
// session must be active.
func (s *Server) CompleteLogin(ctx context.Context, state, sessionID string) (*AuthorizeResult, error) {
	ctx, span := s.startSpan(ctx, "server.CompleteLogin")
	defer endSpan(span)

	record, err := s.ConsumeState(ctx, state)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	if session == nil {
		return nil, belgie.ErrLoginRequired("authentication required")
	}

	redirect, err := s.issueCodeRedirect(ctx, record.ClientID, record.RedirectURI,
		record.RedirectURIExplicit, record.Scopes, record.CodeChallenge,
		record.CodeChallengeMethod, record.Resource, record.ClientState, session)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return &AuthorizeResult{RedirectURL: redirect}, nil
}

// issueCodeRedirect mints a single-use authorization code and composes the
// redirect back to the client.
func (s *Server) issueCodeRedirect(ctx context.Context, clientID, redirectURI string, explicit bool, scopes []string, challenge, method, resource, clientState string, session *storage.Session) (string, error) {
	now := nowUTC()
	code := &storage.AuthorizationCode{
		Code:                s.generateToken(),
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		RedirectURIExplicit: explicit,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		Scopes:              scopes,
		UserID:              session.UserID,
		SessionID:           session.ID,
		Resource:            resource,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.config.AuthorizationCodeTTL),
	}
	if err := s.store.SaveCode(ctx, code); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.auditor.LogCodeIssued(session.UserID, clientID, strings.Join(scopes, " "))
	if s.metrics != nil {
		s.metrics.RecordCodeIssued(ctx, clientID)
	}

	redirect, err := oauthutil.ComposeRedirect(redirectURI, map[string]string{
		"code":  code.Code,
		"state": clientState,
	})
	if err != nil {
		return "", belgie.ErrInvalidRedirectURI("invalid redirect URI")
	}
	return redirect, nil
}

// ExchangeCode redeems an authorization code for tokens. Every failure mode
// past client authentication (unknown code, replay, expiry, binding
// mismatch, PKCE mismatch) returns the same generic invalid_grant so the
// endpoint cannot be used as an oracle.
func (s *Server) ExchangeCode(ctx context.Context, req *ExchangeRequest) (*belgie.TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "server.ExchangeCode")
	defer endSpan(span)

	client, err := s.getClient(ctx, req.ClientID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	if err := s.validateClientSecret(client, req.ClientSecret); err != nil {
		s.auditor.LogAuthFailure("", req.ClientID, "client authentication failed")
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if req.Code == "" {
		return nil, s.invalidGrant(ctx, "", req.ClientID, "missing code")
	}

	code, err := s.store.ConsumeCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			if s.metrics != nil {
				s.metrics.RecordCodeReuseDetected(ctx)
			}
			s.auditor.LogEvent(security.Event{
				Type:     security.EventAuthorizationCodeReplayed,
				ClientID: req.ClientID,
			})
			return nil, s.invalidGrant(ctx, "", req.ClientID, "unknown or replayed code")
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	if code.ClientID != client.ID {
		return nil, s.invalidGrant(ctx, code.UserID, req.ClientID, "client mismatch")
	}
	if req.RedirectURI != "" || code.RedirectURIExplicit {
		if req.RedirectURI != code.RedirectURI {
			return nil, s.invalidGrant(ctx, code.UserID, req.ClientID, "redirect URI mismatch")
		}
	}
	if err := s.verifyPKCE(ctx, code, req.CodeVerifier); err != nil {
		return nil, err
	}

	response, err := s.issueTokenPair(ctx, code.ClientID, code.UserID, code.SessionID, code.Scopes, code.Resource)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCodeExchange(ctx, client.ID, code.CodeChallengeMethod)
	}
	instrumentation.SetSpanSuccess(span)
	return response, nil
}

// verifyPKCE recomputes the challenge from the presented verifier and
// compares in constant time. Failures report the same invalid_grant as every
// other redemption failure.
func (s *Server) verifyPKCE(ctx context.Context, code *storage.AuthorizationCode, verifier string) error {
	valid := len(verifier) >= minVerifierLength && len(verifier) <= maxVerifierLength && validVerifierCharset(verifier)
	if valid {
		derived := oauthutil.DeriveCodeChallenge(verifier)
		valid = subtle.ConstantTimeCompare([]byte(derived), []byte(code.CodeChallenge)) == 1
	}
	if !valid {
		if s.metrics != nil {
			s.metrics.RecordPKCEValidationFailed(ctx, code.CodeChallengeMethod)
		}
		s.auditor.LogEvent(security.Event{
			Type:     security.EventPKCEValidationFailed,
			UserID:   code.UserID,
			ClientID: code.ClientID,
		})
		return s.invalidGrant(ctx, code.UserID, code.ClientID, "pkce verification failed")
	}
	return nil
}

// validVerifierCharset enforces the RFC 7636 unreserved alphabet.
func validVerifierCharset(verifier string) bool {
	for _, r := range verifier {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == '_' || r == '~':
		default:
			return false
		}
	}
	return true
}

// invalidGrant logs the real failure reason internally and returns the
// generic error the caller sees.
func (s *Server) invalidGrant(ctx context.Context, userID, clientID, reason string) error {
	s.auditor.LogAuthFailure(userID, clientID, reason)
	s.logger.Debug("Grant rejected", "client_id", clientID, "reason", reason)
	return belgie.ErrInvalidGrant("invalid grant")
}

// RefreshAccessToken rotates a refresh token: the old token is consumed
// atomically and a new access/refresh pair is issued. Requested scopes must
// be a subset of the originally granted ones.
func (s *Server) RefreshAccessToken(ctx context.Context, refreshToken, clientID, clientSecret, scope string) (*belgie.TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "server.RefreshAccessToken")
	defer endSpan(span)

	client, err := s.getClient(ctx, clientID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	if err := s.validateClientSecret(client, clientSecret); err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	key, err := s.lookupKey(refreshToken)
	if err != nil {
		return nil, s.invalidGrant(ctx, "", clientID, "malformed refresh token")
	}

	record, err := s.store.ConsumeRefreshToken(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, s.invalidGrant(ctx, "", clientID, "unknown or expired refresh token")
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	if record.RevokedAt != nil {
		return nil, s.invalidGrant(ctx, record.UserID, clientID, "revoked refresh token")
	}
	if record.ClientID != client.ID {
		return nil, s.invalidGrant(ctx, record.UserID, clientID, "client mismatch")
	}

	scopes := record.Scopes
	if scope != "" {
		requested := strings.Fields(scope)
		if !scopeSubset(requested, record.Scopes) {
			return nil, belgie.ErrInvalidScope("requested scope exceeds original grant")
		}
		scopes = requested
	}

	response, err := s.issueTokenPair(ctx, record.ClientID, record.UserID, record.SessionID, scopes, record.Resource)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	s.auditor.LogEvent(security.Event{
		Type:     security.EventTokenRefreshed,
		UserID:   record.UserID,
		ClientID: record.ClientID,
	})
	if s.metrics != nil {
		s.metrics.RecordTokenRefresh(ctx, record.ClientID, true)
	}
	instrumentation.SetSpanSuccess(span)
	return response, nil
}

// Revoke invalidates a token per RFC 7009. Access tokens are deleted;
// refresh tokens are marked revoked and stay inactive until expiry removes
// them. Revoking an unknown token succeeds.
func (s *Server) Revoke(ctx context.Context, token, clientID string) error {
	ctx, span := s.startSpan(ctx, "server.Revoke")
	defer endSpan(span)

	key, err := s.lookupKey(token)
	if err != nil {
		// Foreign token; nothing to revoke.
		return nil
	}

	_, err = s.store.GetAccessToken(ctx, key)
	switch {
	case err == nil:
		if err := s.store.DeleteAccessToken(ctx, key); err != nil {
			instrumentation.RecordError(span, err)
			return fmt.Errorf("failed to delete access token: %w", err)
		}
		s.auditor.LogTokenRevoked(clientID, "access_token")
		if s.metrics != nil {
			s.metrics.RecordTokenRevocation(ctx, clientID)
		}
		return nil
	case !errors.Is(err, storage.ErrTokenNotFound):
		instrumentation.RecordError(span, err)
		return fmt.Errorf("failed to look up access token: %w", err)
	}

	record, err := s.store.GetRefreshToken(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil
		}
		instrumentation.RecordError(span, err)
		return fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if record.RevokedAt == nil {
		now := nowUTC()
		record.RevokedAt = &now
		if err := s.store.SaveRefreshToken(ctx, record); err != nil {
			instrumentation.RecordError(span, err)
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
	}
	s.auditor.LogTokenRevoked(clientID, "refresh_token")
	if s.metrics != nil {
		s.metrics.RecordTokenRevocation(ctx, clientID)
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}
