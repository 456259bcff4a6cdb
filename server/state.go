package server

import (
	"context"
	"errors"
	"fmt"

	belgie "github.com/mplemay/belgie-sub001"
	"github.com/mplemay/belgie-sub001/security"
	"github.com/mplemay/belgie-sub001/storage"
)

// BeginState mints a random CSRF state token binding a redirect target and
// an optional PKCE verifier, and persists it with the configured state TTL.
func (s *Server) BeginState(ctx context.Context, redirectTarget, codeVerifier string) (*storage.AuthorizationState, error) {
	record := &storage.AuthorizationState{
		RedirectURI:  redirectTarget,
		CodeVerifier: codeVerifier,
	}
	if err := s.saveState(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// saveState fills in the token and expiry and persists the record.
func (s *Server) saveState(ctx context.Context, record *storage.AuthorizationState) error {
	now := nowUTC()
	record.State = s.generateToken()
	record.CreatedAt = now
	record.ExpiresAt = now.Add(s.config.StateTTL)

	if err := s.store.SaveState(ctx, record); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// ConsumeState atomically fetches and invalidates a state token. Unknown,
// expired, and replayed states all fail identically so the store never acts
// as an oracle.
func (s *Server) ConsumeState(ctx context.Context, state string) (*storage.AuthorizationState, error) {
	if state == "" {
		return nil, belgie.ErrInvalidState("invalid state parameter")
	}

	record, err := s.store.ConsumeState(ctx, state)
	if err != nil {
		if errors.Is(err, storage.ErrStateNotFound) {
			s.auditor.LogEvent(security.Event{
				Type: security.EventStateReplayed,
			})
			if s.metrics != nil {
				s.metrics.RecordStateReuseDetected(ctx)
			}
			return nil, belgie.ErrInvalidState("invalid state parameter")
		}
		return nil, fmt.Errorf("failed to consume state: %w", err)
	}
	return record, nil
}
