package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	belgie "github.com/mplemay/belgie-sub001"
	"github.com/mplemay/belgie-sub001/instrumentation"
	"github.com/mplemay/belgie-sub001/oauthutil"
	"github.com/mplemay/belgie-sub001/security"
	"github.com/mplemay/belgie-sub001/storage"
)

// tokenKey maps an unprefixed opaque token to its storage key. When a hash
// secret is configured only the HMAC ever reaches the store.
func (s *Server) tokenKey(token string) string {
	if s.config.TokenHashSecret == "" {
		return token
	}
	return oauthutil.HashToken(token, s.config.TokenHashSecret)
}

// mintToken generates a fresh opaque token and the storage key for it. The
// returned token carries the configured namespace prefix.
func (s *Server) mintToken() (token, key string) {
	raw := s.generateToken()
	return oauthutil.ApplyPrefix(raw, s.config.TokenPrefix), s.tokenKey(raw)
}

// lookupKey resolves a presented token to its storage key. Fails when the
// namespace prefix is missing.
func (s *Server) lookupKey(token string) (string, error) {
	raw, err := oauthutil.StripPrefix(token, s.config.TokenPrefix)
	if err != nil {
		return "", err
	}
	return s.tokenKey(raw), nil
}

// IssueToken mints and persists an access token. userID and sessionID may be
// empty for client-credential style tokens. Returns the bearer token value
// and the stored record.
func (s *Server) IssueToken(ctx context.Context, clientID, userID, sessionID string, scopes []string, resource string) (string, *storage.AccessToken, error) {
	token, key := s.mintToken()
	now := nowUTC()
	record := &storage.AccessToken{
		Key:       key,
		ClientID:  clientID,
		UserID:    userID,
		SessionID: sessionID,
		Scopes:    append([]string(nil), scopes...),
		Resource:  resource,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.AccessTokenTTL),
	}
	if err := s.store.SaveAccessToken(ctx, record); err != nil {
		return "", nil, fmt.Errorf("failed to save access token: %w", err)
	}

	s.auditor.LogTokenIssued(userID, clientID, strings.Join(scopes, " "))
	return token, record, nil
}

// issueRefreshToken mints and persists a refresh token tied to the same
// grant as an access token.
func (s *Server) issueRefreshToken(ctx context.Context, clientID, userID, sessionID string, scopes []string, resource string) (string, error) {
	token, key := s.mintToken()
	now := nowUTC()
	record := &storage.RefreshToken{
		Key:       key,
		ClientID:  clientID,
		UserID:    userID,
		SessionID: sessionID,
		Scopes:    append([]string(nil), scopes...),
		Resource:  resource,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
	}
	if err := s.store.SaveRefreshToken(ctx, record); err != nil {
		return "", fmt.Errorf("failed to save refresh token: %w", err)
	}
	return token, nil
}

// issueTokenPair mints an access token and companion refresh token, returning
// the wire-format token response.
func (s *Server) issueTokenPair(ctx context.Context, clientID, userID, sessionID string, scopes []string, resource string) (*belgie.TokenResponse, error) {
	accessToken, record, err := s.IssueToken(ctx, clientID, userID, sessionID, scopes, resource)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.issueRefreshToken(ctx, clientID, userID, sessionID, scopes, resource)
	if err != nil {
		return nil, err
	}
	return &belgie.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        strings.Join(record.Scopes, " "),
	}, nil
}

// Introspect implements RFC 7662 token introspection. A missing token is a
// request error; an unknown or expired token yields {active:false} with no
// claims and no error. Client credentials are validated when supplied, but
// their absence does not by itself deactivate a token.
func (s *Server) Introspect(ctx context.Context, token, clientID, clientSecret string) (*belgie.IntrospectionResponse, error) {
	ctx, span := s.startSpan(ctx, "server.Introspect")
	defer endSpan(span)

	if token == "" {
		return nil, belgie.ErrInvalidRequest("missing token parameter")
	}

	if clientID != "" {
		if !s.introspectionLimiter.Allow(clientID) {
			s.auditor.LogEvent(security.Event{
				Type:     security.EventRateLimitExceeded,
				ClientID: clientID,
			})
			if s.metrics != nil {
				s.metrics.RecordRateLimitExceeded(ctx, "introspection")
			}
			return nil, belgie.ErrInvalidRequest("rate limit exceeded")
		}
		client, err := s.getClient(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if clientSecret != "" {
			if err := s.validateClientSecret(client, clientSecret); err != nil {
				return nil, err
			}
		}
	}

	inactive := &belgie.IntrospectionResponse{Active: false}

	key, err := s.lookupKey(token)
	if err != nil {
		s.recordIntrospection(ctx, false)
		return inactive, nil
	}

	record, err := s.store.GetAccessToken(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			s.recordIntrospection(ctx, false)
			return inactive, nil
		}
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if security.IsTokenExpired(record.ExpiresAt) {
		s.recordIntrospection(ctx, false)
		return inactive, nil
	}

	s.recordIntrospection(ctx, true)
	s.auditor.LogEvent(security.Event{
		Type:     security.EventTokenIntrospected,
		UserID:   record.UserID,
		ClientID: record.ClientID,
	})
	instrumentation.SetSpanSuccess(span)

	return &belgie.IntrospectionResponse{
		Active:    true,
		ClientID:  record.ClientID,
		Scope:     strings.Join(record.Scopes, " "),
		IssuedAt:  record.CreatedAt.Unix(),
		ExpiresAt: record.ExpiresAt.Unix(),
		TokenType: "Bearer",
		Audience:  record.Resource,
	}, nil
}

func (s *Server) recordIntrospection(ctx context.Context, active bool) {
	if s.metrics != nil {
		s.metrics.RecordTokenIntrospection(ctx, active)
	}
}
