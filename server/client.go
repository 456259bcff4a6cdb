package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	belgie "github.com/mplemay/belgie-sub001"
	"github.com/mplemay/belgie-sub001/security"
	"github.com/mplemay/belgie-sub001/storage"
)

// ClientRegistration is returned by RegisterClient. Secret is the plaintext
// client secret, shown exactly once; only its bcrypt hash is persisted.
type ClientRegistration struct {
	ClientID     string
	Secret       string
	RedirectURIs []string
	Scopes       []string
	Public       bool
}

// RegisterClient provisions a new OAuth client. authMethod "none" yields a
// public client with no secret; anything else gets a generated secret.
func (s *Server) RegisterClient(ctx context.Context, name string, redirectURIs, scopes []string, authMethod string) (*ClientRegistration, error) {
	if len(redirectURIs) == 0 {
		return nil, belgie.ErrInvalidRequest("at least one redirect URI is required")
	}
	if len(scopes) == 0 {
		scopes = []string{s.config.DefaultScope}
	}

	id, err := newClientID(s.config.TokenPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to generate client id: %w", err)
	}

	client := &storage.Client{
		ID:           id,
		RedirectURIs: append([]string(nil), redirectURIs...),
		Scopes:       append([]string(nil), scopes...),
		Public:       authMethod == "none",
		Name:         name,
		CreatedAt:    nowUTC(),
	}

	reg := &ClientRegistration{
		ClientID:     id,
		RedirectURIs: client.RedirectURIs,
		Scopes:       client.Scopes,
		Public:       client.Public,
	}

	if !client.Public {
		secret := s.generateToken()
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.SecretHash = hash
		reg.Secret = secret
	}

	if err := s.store.SaveClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to save client: %w", err)
	}

	s.auditor.LogEvent(security.Event{
		Type:     security.EventClientRegistered,
		ClientID: id,
		Details:  map[string]any{"public": client.Public},
	})
	if s.metrics != nil {
		clientType := "confidential"
		if client.Public {
			clientType = "public"
		}
		s.metrics.RecordClientRegistration(ctx, clientType)
	}

	return reg, nil
}

// newClientID builds an identifier like "belgie_client_a1b2c3d4e5f6a7b8".
func newClientID(tokenPrefix string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return tokenPrefix + "client_" + hex.EncodeToString(buf), nil
}

// getClient resolves a client, mapping absence to invalid_client.
func (s *Server) getClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if clientID == "" {
		return nil, belgie.ErrInvalidClient("missing client_id")
	}
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, belgie.ErrInvalidClient("unknown client")
	}
	return client, nil
}

// validateClientSecret checks a confidential client's secret. Public clients
// pass with an empty secret.
func (s *Server) validateClientSecret(client *storage.Client, secret string) error {
	if client.Public {
		if secret != "" {
			return belgie.ErrInvalidClient("public client must not send a secret")
		}
		return nil
	}
	if secret == "" {
		return belgie.ErrInvalidClient("client authentication required")
	}
	if err := bcrypt.CompareHashAndPassword(client.SecretHash, []byte(secret)); err != nil {
		return belgie.ErrInvalidClient("invalid client credentials")
	}
	return nil
}

// ValidateRedirectURI resolves the redirect URI for a request. An absent URI
// defaults to the sole registered one; otherwise the requested URI must
// exactly match a registration. The second return reports whether the caller
// supplied the URI explicitly.
func (s *Server) ValidateRedirectURI(client *storage.Client, requested string) (string, bool, error) {
	if requested == "" {
		if len(client.RedirectURIs) == 1 {
			return client.RedirectURIs[0], false, nil
		}
		return "", false, belgie.ErrInvalidRedirectURI("redirect_uri required when multiple URIs are registered")
	}
	for _, registered := range client.RedirectURIs {
		if requested == registered {
			return requested, true, nil
		}
	}
	s.auditor.LogEvent(security.Event{
		Type:     security.EventInvalidRedirect,
		ClientID: client.ID,
		Details:  map[string]any{"requested": requested},
	})
	return "", false, belgie.ErrInvalidRedirectURI("redirect URI not registered for client")
}

// ValidateScope parses a space-delimited scope string against the client's
// registration. Empty input returns nil, meaning no restriction beyond the
// server default.
func (s *Server) ValidateScope(client *storage.Client, requested string) ([]string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return nil, nil
	}

	allowed := client.Scopes
	if len(allowed) == 0 {
		allowed = []string{s.config.DefaultScope}
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, scope := range allowed {
		allowedSet[scope] = struct{}{}
	}

	scopes := strings.Fields(requested)
	for _, scope := range scopes {
		if _, ok := allowedSet[scope]; !ok {
			s.auditor.LogEvent(security.Event{
				Type:     security.EventScopeEscalationAttempt,
				ClientID: client.ID,
				Details:  map[string]any{"scope": scope},
			})
			return nil, belgie.ErrInvalidScope(fmt.Sprintf("scope %q not allowed for client", scope))
		}
	}
	return scopes, nil
}

// scopeSubset reports whether every requested scope was previously granted.
func scopeSubset(requested, granted []string) bool {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, scope := range granted {
		grantedSet[scope] = struct{}{}
	}
	for _, scope := range requested {
		if _, ok := grantedSet[scope]; !ok {
			return false
		}
	}
	return true
}
