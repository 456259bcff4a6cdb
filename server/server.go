// Package server implements the authorization server protocol engine:
// client and redirect-URI validation, CSRF state handling, PKCE-verified
// authorization code issuance and single-use redemption, access and refresh
// token issuance, introspection, revocation, and the sliding-expiry session
// gate. HTTP routing and request marshaling are left to the embedding
// application.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/mplemay/belgie-sub001/instrumentation"
	"github.com/mplemay/belgie-sub001/security"
	"github.com/mplemay/belgie-sub001/storage"
)

// Server is the authorization server core. Safe for concurrent use; all
// mutable state lives in the storage backend.
type Server struct {
	config  *Config
	store   storage.Store
	logger  *slog.Logger
	auditor *security.Auditor

	sessions *SessionManager
	hooks    *Hooks

	introspectionLimiter *security.RateLimiter

	inst    *instrumentation.Instrumentation
	metrics *instrumentation.Metrics
	tracer  trace.Tracer
}

// New validates the configuration, seeds the built-in client, and returns a
// ready Server.
func New(ctx context.Context, cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		config:  cfg,
		store:   cfg.Store,
		logger:  cfg.Logger,
		auditor: security.NewAuditor(cfg.Logger, !cfg.DisableAuditLog),
		hooks:   NewHooks(),
	}

	s.sessions = NewSessionManager(cfg.Store, cfg.SessionMaxAge, cfg.SessionUpdateAge, cfg.Logger, s.auditor)

	s.introspectionLimiter = security.NewRateLimiter(cfg.IntrospectionRPS, cfg.IntrospectionBurst, cfg.Logger)

	if cfg.Instrumentation != nil {
		s.inst = cfg.Instrumentation
		s.metrics = cfg.Instrumentation.Metrics()
		s.tracer = cfg.Instrumentation.Tracer("server")
		s.sessions.setMetrics(s.metrics)
	}

	if err := s.seedBuiltinClient(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("Authorization server initialized",
		"client_id", cfg.ClientID,
		"issuer", cfg.IssuerURL(),
		"public_client", cfg.ClientSecret == "")

	return s, nil
}

// seedBuiltinClient registers the configured client so the flows can resolve
// it like any dynamically registered one.
func (s *Server) seedBuiltinClient(ctx context.Context) error {
	client := &storage.Client{
		ID:           s.config.ClientID,
		RedirectURIs: append([]string(nil), s.config.RedirectURIs...),
		Scopes:       append([]string(nil), s.config.AllowedScopes...),
		Public:       s.config.ClientSecret == "",
		Name:         s.config.ClientID,
		CreatedAt:    nowUTC(),
	}
	if s.config.ClientSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.config.ClientSecret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.SecretHash = hash
	}
	if err := s.store.SaveClient(ctx, client); err != nil {
		return fmt.Errorf("failed to seed client: %w", err)
	}
	return nil
}

// Sessions returns the session gate.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Hooks returns the event hook registry.
func (s *Server) Hooks() *Hooks {
	return s.hooks
}

// Config returns the server configuration. Callers must not mutate it.
func (s *Server) Config() *Config {
	return s.config
}

// Close stops background resources owned by the server.
func (s *Server) Close() error {
	s.introspectionLimiter.Stop()
	return nil
}

// generateToken returns a cryptographically random opaque token. The
// verifier alphabet from RFC 7636 is URL-safe, which suits every opaque
// token this server mints.
func (s *Server) generateToken() string {
	return oauth2.GenerateVerifier()
}

// startSpan starts a tracing span when instrumentation is configured.
// Returns a nil span otherwise; the instrumentation helpers are nil-safe.
func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.Start(ctx, name)
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// nowUTC keeps all persisted timestamps in UTC so expiry comparisons are
// stable across backends.
func nowUTC() time.Time {
	return time.Now().UTC()
}
