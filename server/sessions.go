package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mplemay/belgie-sub001/instrumentation"
	"github.com/mplemay/belgie-sub001/security"
	"github.com/mplemay/belgie-sub001/storage"
)

// SessionManager is the session gate: every authorization decision goes
// through it to establish who is logged in. Expiry is sliding; a read within
// updateAge of expiry extends the session to now+maxAge.
type SessionManager struct {
	store     storage.SessionStore
	maxAge    time.Duration
	updateAge time.Duration
	logger    *slog.Logger
	auditor   *security.Auditor
	metrics   *instrumentation.Metrics
}

// NewSessionManager creates a session gate over the given store.
func NewSessionManager(store storage.SessionStore, maxAge, updateAge time.Duration, logger *slog.Logger, auditor *security.Auditor) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:     store,
		maxAge:    maxAge,
		updateAge: updateAge,
		logger:    logger,
		auditor:   auditor,
	}
}

func (m *SessionManager) setMetrics(metrics *instrumentation.Metrics) {
	m.metrics = metrics
}

// CreateSession starts a session for an authenticated user.
func (m *SessionManager) CreateSession(ctx context.Context, userID, ipAddress, userAgent string) (*storage.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	now := nowUTC()
	session := &storage.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.maxAge),
	}
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.auditor.LogEvent(security.Event{
		Type:      security.EventSessionCreated,
		UserID:    userID,
		SessionID: session.ID,
	})
	if m.metrics != nil {
		m.metrics.SessionCreated.Add(ctx, 1)
	}
	return session, nil
}

// GetSession looks up a session, applying lazy expiry and sliding renewal.
// An unknown or expired session returns (nil, nil); deletion on expiry is
// terminal. Renewal extends ExpiresAt only, never CreatedAt or the user.
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	now := nowUTC()
	if !session.ExpiresAt.After(now) {
		if err := m.store.DeleteSession(ctx, sessionID); err != nil {
			m.logger.Warn("Failed to delete expired session", "error", err)
		}
		m.auditor.LogSessionExpired(sessionID)
		if m.metrics != nil {
			m.metrics.SessionExpired.Add(ctx, 1)
		}
		return nil, nil
	}

	if session.ExpiresAt.Sub(now) < m.updateAge {
		session.ExpiresAt = now.Add(m.maxAge)
		session.UpdatedAt = now
		if err := m.store.UpdateSession(ctx, session); err != nil {
			// Lost renewals are tolerable; the caller still gets the
			// session it read.
			m.logger.Warn("Failed to renew session", "error", err)
		} else {
			m.auditor.LogEvent(security.Event{
				Type:      security.EventSessionRenewed,
				UserID:    session.UserID,
				SessionID: session.ID,
			})
			if m.metrics != nil {
				m.metrics.SessionRenewed.Add(ctx, 1)
			}
		}
	}

	return session, nil
}

// DeleteSession removes a session. Returns whether a session existed.
func (m *SessionManager) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	_, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get session: %w", err)
	}
	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return true, nil
}

// DeleteExpiredSessions runs the maintenance sweep. Idempotent.
func (m *SessionManager) DeleteExpiredSessions(ctx context.Context) error {
	return m.store.DeleteExpiredSessions(ctx)
}
