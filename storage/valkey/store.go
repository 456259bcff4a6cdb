// Package valkey provides a Valkey-backed storage implementation for
// multi-instance deployments. Records are stored as JSON with server-side
// TTLs; single-use records are consumed with GETDEL so at most one instance
// ever redeems a given state, code, or refresh token.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/mplemay/belgie-sub001/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "belgie:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "belgie:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.Store.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// New creates a new Valkey-backed storage instance. Returns an error if the
// connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() error {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
	return nil
}

func (s *Store) clientKey(id string) string  { return s.prefix + "client:" + id }
func (s *Store) stateKey(st string) string   { return s.prefix + "state:" + st }
func (s *Store) codeKey(c string) string     { return s.prefix + "code:" + c }
func (s *Store) accessKey(k string) string   { return s.prefix + "at:" + k }
func (s *Store) refreshKey(k string) string  { return s.prefix + "rt:" + k }
func (s *Store) sessionKey(id string) string { return s.prefix + "session:" + id }

func calculateTTL(expiresAt time.Time) time.Duration {
	return time.Until(expiresAt)
}

// isNilError checks if the error indicates a nil/not-found result from Valkey.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// setJSON marshals a record and stores it under key with an optional TTL.
func (s *Store) setJSON(ctx context.Context, key string, record any, expiresAt time.Time) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if expiresAt.IsZero() {
		return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error()
	}

	ttl := calculateTTL(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("record already expired")
	}
	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build()).Error()
}

// getJSON fetches a record into out, mapping a nil reply to notFoundErr.
func (s *Store) getJSON(ctx context.Context, key string, out any, notFoundErr error) error {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return notFoundErr
		}
		return fmt.Errorf("failed to get record: %w", err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// consumeJSON atomically fetches and deletes a record using GETDEL.
func (s *Store) consumeJSON(ctx context.Context, key string, out any, notFoundErr error) error {
	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return notFoundErr
		}
		return fmt.Errorf("failed to consume record: %w", err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// --- Clients ---

func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	return s.setJSON(ctx, s.clientKey(client.ID), client, time.Time{})
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	var client storage.Client
	if err := s.getJSON(ctx, s.clientKey(clientID), &client, storage.ErrClientNotFound); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	return s.del(ctx, s.clientKey(clientID))
}

// --- Authorization states ---

func (s *Store) SaveState(ctx context.Context, state *storage.AuthorizationState) error {
	return s.setJSON(ctx, s.stateKey(state.State), state, state.ExpiresAt)
}

func (s *Store) ConsumeState(ctx context.Context, state string) (*storage.AuthorizationState, error) {
	var record storage.AuthorizationState
	if err := s.consumeJSON(ctx, s.stateKey(state), &record, storage.ErrStateNotFound); err != nil {
		return nil, err
	}
	if time.Now().After(record.ExpiresAt) {
		return nil, storage.ErrStateNotFound
	}
	return &record, nil
}

// DeleteExpiredStates is a no-op: Valkey TTLs expire states server-side.
func (s *Store) DeleteExpiredStates(ctx context.Context) error {
	return nil
}

// --- Authorization codes ---

func (s *Store) SaveCode(ctx context.Context, code *storage.AuthorizationCode) error {
	return s.setJSON(ctx, s.codeKey(code.Code), code, code.ExpiresAt)
}

func (s *Store) ConsumeCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var record storage.AuthorizationCode
	if err := s.consumeJSON(ctx, s.codeKey(code), &record, storage.ErrCodeNotFound); err != nil {
		return nil, err
	}
	if time.Now().After(record.ExpiresAt) {
		return nil, storage.ErrCodeNotFound
	}
	return &record, nil
}

// DeleteExpiredCodes is a no-op: Valkey TTLs expire codes server-side.
func (s *Store) DeleteExpiredCodes(ctx context.Context) error {
	return nil
}

// --- Tokens ---

func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	return s.setJSON(ctx, s.accessKey(token.Key), token, token.ExpiresAt)
}

func (s *Store) GetAccessToken(ctx context.Context, key string) (*storage.AccessToken, error) {
	var token storage.AccessToken
	if err := s.getJSON(ctx, s.accessKey(key), &token, storage.ErrTokenNotFound); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *Store) DeleteAccessToken(ctx context.Context, key string) error {
	return s.del(ctx, s.accessKey(key))
}

func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	return s.setJSON(ctx, s.refreshKey(token.Key), token, token.ExpiresAt)
}

func (s *Store) ConsumeRefreshToken(ctx context.Context, key string) (*storage.RefreshToken, error) {
	var token storage.RefreshToken
	if err := s.consumeJSON(ctx, s.refreshKey(key), &token, storage.ErrTokenNotFound); err != nil {
		return nil, err
	}
	if time.Now().After(token.ExpiresAt) {
		return nil, storage.ErrTokenNotFound
	}
	return &token, nil
}

func (s *Store) GetRefreshToken(ctx context.Context, key string) (*storage.RefreshToken, error) {
	var token storage.RefreshToken
	if err := s.getJSON(ctx, s.refreshKey(key), &token, storage.ErrTokenNotFound); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, key string) error {
	return s.del(ctx, s.refreshKey(key))
}

// DeleteExpiredTokens is a no-op: Valkey TTLs expire tokens server-side.
func (s *Store) DeleteExpiredTokens(ctx context.Context) error {
	return nil
}

// --- Sessions ---

func (s *Store) SaveSession(ctx context.Context, session *storage.Session) error {
	return s.setJSON(ctx, s.sessionKey(session.ID), session, session.ExpiresAt)
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	var session storage.Session
	if err := s.getJSON(ctx, s.sessionKey(sessionID), &session, storage.ErrSessionNotFound); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession rewrites an existing session record. The key TTL follows the
// new ExpiresAt so sliding renewal extends the server-side expiry too. The
// write is conditional on the key still existing (SET XX): a session deleted
// by a concurrent logout stays deleted.
func (s *Store) UpdateSession(ctx context.Context, session *storage.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	ttl := calculateTTL(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("record already expired")
	}

	key := s.sessionKey(session.ID)
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Xx().Ex(ttl).Build()).Error(); err != nil {
		if isNilError(err) {
			return storage.ErrSessionNotFound
		}
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.del(ctx, s.sessionKey(sessionID))
}

// DeleteExpiredSessions is a no-op: Valkey TTLs expire sessions server-side.
func (s *Store) DeleteExpiredSessions(ctx context.Context) error {
	return nil
}
