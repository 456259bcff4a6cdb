// Package memory provides an in-memory storage implementation. Suitable for
// development, tests, and single-instance deployments; state does not survive
// a restart.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mplemay/belgie-sub001/instrumentation"
	"github.com/mplemay/belgie-sub001/internal/util"
	"github.com/mplemay/belgie-sub001/storage"
)

const defaultCleanupInterval = time.Minute

// credentialLogLength limits how much of a code or state reaches debug logs.
const credentialLogLength = 8

// Store is an in-memory implementation of storage.Store. All maps are
// guarded by a single RWMutex; the consume operations take the write lock so
// fetch-and-delete is atomic.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*storage.Client
	states        map[string]*storage.AuthorizationState
	codes         map[string]*storage.AuthorizationCode
	accessTokens  map[string]*storage.AccessToken
	refreshTokens map[string]*storage.RefreshToken
	sessions      map[string]*storage.Session

	logger *slog.Logger
	inst   *instrumentation.Instrumentation

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// New creates an in-memory store and starts its background cleanup loop.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		clients:       make(map[string]*storage.Client),
		states:        make(map[string]*storage.AuthorizationState),
		codes:         make(map[string]*storage.AuthorizationCode),
		accessTokens:  make(map[string]*storage.AccessToken),
		refreshTokens: make(map[string]*storage.RefreshToken),
		sessions:      make(map[string]*storage.Session),
		logger:        logger,
		stopCleanup:   make(chan struct{}),
	}

	go s.cleanupLoop(defaultCleanupInterval)

	return s
}

// SetInstrumentation wires OpenTelemetry instrumentation into the store and
// registers the storage size gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
	if inst == nil {
		return
	}

	err := inst.RegisterStorageSizeCallbacks(
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.clients)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.states)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.codes)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.accessTokens)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.refreshTokens)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.sessions)) },
	)
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

// Close stops the cleanup loop.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

// --- Clients ---

func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *client
	s.clients[client.ID] = &stored
	return nil
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	copied := *client
	return &copied, nil
}

func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, clientID)
	return nil
}

// --- Authorization states ---

func (s *Store) SaveState(ctx context.Context, state *storage.AuthorizationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *state
	s.states[state.State] = &stored
	s.logger.Debug("Saved authorization state",
		"state_prefix", util.SafeTruncate(state.State, credentialLogLength),
		"client_id", state.ClientID)
	return nil
}

func (s *Store) ConsumeState(ctx context.Context, state string) (*storage.AuthorizationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.states[state]
	if !ok {
		return nil, storage.ErrStateNotFound
	}
	delete(s.states, state)

	if time.Now().After(record.ExpiresAt) {
		return nil, storage.ErrStateNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *Store) DeleteExpiredStates(ctx context.Context) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, record := range s.states {
		if now.After(record.ExpiresAt) {
			delete(s.states, key)
		}
	}
	return nil
}

// --- Authorization codes ---

func (s *Store) SaveCode(ctx context.Context, code *storage.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *code
	s.codes[code.Code] = &stored
	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, credentialLogLength),
		"client_id", code.ClientID)
	return nil
}

func (s *Store) ConsumeCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrCodeNotFound
	}
	delete(s.codes, code)

	if time.Now().After(record.ExpiresAt) {
		return nil, storage.ErrCodeNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *Store) DeleteExpiredCodes(ctx context.Context) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, record := range s.codes {
		if now.After(record.ExpiresAt) {
			delete(s.codes, key)
		}
	}
	return nil
}

// --- Tokens ---

func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *token
	s.accessTokens[token.Key] = &stored
	return nil
}

func (s *Store) GetAccessToken(ctx context.Context, key string) (*storage.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.accessTokens[key]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	copied := *token
	return &copied, nil
}

func (s *Store) DeleteAccessToken(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accessTokens, key)
	return nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *token
	s.refreshTokens[token.Key] = &stored
	return nil
}

func (s *Store) ConsumeRefreshToken(ctx context.Context, key string) (*storage.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refreshTokens[key]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	delete(s.refreshTokens, key)

	if time.Now().After(token.ExpiresAt) {
		return nil, storage.ErrTokenNotFound
	}
	copied := *token
	return &copied, nil
}

func (s *Store) GetRefreshToken(ctx context.Context, key string) (*storage.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.refreshTokens[key]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	copied := *token
	return &copied, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refreshTokens, key)
	return nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, token := range s.accessTokens {
		if now.After(token.ExpiresAt) {
			delete(s.accessTokens, key)
		}
	}
	for key, token := range s.refreshTokens {
		if now.After(token.ExpiresAt) {
			delete(s.refreshTokens, key)
		}
	}
	return nil
}

// --- Sessions ---

func (s *Store) SaveSession(ctx context.Context, session *storage.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *Store) UpdateSession(ctx context.Context, session *storage.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return storage.ErrSessionNotFound
	}
	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, key)
		}
	}
	return nil
}

// --- Cleanup ---

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	ctx := context.Background()

	if err := s.DeleteExpiredStates(ctx); err != nil {
		s.logger.Warn("Failed to clean up expired states", "error", err)
	}
	if err := s.DeleteExpiredCodes(ctx); err != nil {
		s.logger.Warn("Failed to clean up expired codes", "error", err)
	}
	if err := s.DeleteExpiredTokens(ctx); err != nil {
		s.logger.Warn("Failed to clean up expired tokens", "error", err)
	}
	if err := s.DeleteExpiredSessions(ctx); err != nil {
		s.logger.Warn("Failed to clean up expired sessions", "error", err)
	}
}
