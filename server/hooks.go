package server

import (
	"context"
	"sync"

	"github.com/mplemay/belgie-sub001/storage"
)

// HookEvent names a lifecycle event handlers can attach to.
type HookEvent string

const (
	HookBeforeSignUp HookEvent = "before_sign_up"
	HookSignUp       HookEvent = "sign_up"
	HookSignIn       HookEvent = "sign_in"
	HookSignOut      HookEvent = "sign_out"
)

// HookContext carries event data to handlers. Values is scratch space
// handlers may use to pass information to later handlers.
type HookContext struct {
	UserID    string
	SessionID string
	ClientID  string
	Values    map[string]any
}

// HookHandler runs to completion before the next handler is invoked.
type HookHandler func(ctx context.Context, hc *HookContext) error

// WrapHandler brackets the dispatched action: it runs in registration order
// like a plain handler, and its returned release function runs in reverse
// order after the action completes. A nil release is skipped.
type WrapHandler func(ctx context.Context, hc *HookContext) (release func(ctx context.Context) error, err error)

type hookEntry struct {
	handler HookHandler
	wrap    WrapHandler
}

// Hooks is an ordered registry of event handlers. Registration order is
// dispatch order.
type Hooks struct {
	mu      sync.RWMutex
	entries map[HookEvent][]hookEntry
}

// NewHooks creates an empty registry.
func NewHooks() *Hooks {
	return &Hooks{entries: make(map[HookEvent][]hookEntry)}
}

// On registers a plain handler for an event.
func (h *Hooks) On(event HookEvent, handler HookHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[event] = append(h.entries[event], hookEntry{handler: handler})
}

// OnWrap registers a wrapping handler for an event.
func (h *Hooks) OnWrap(event HookEvent, handler WrapHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[event] = append(h.entries[event], hookEntry{wrap: handler})
}

// Dispatch runs the event's handlers in registration order, then the action,
// then any releases from wrapping handlers in reverse order. The first error
// stops further handlers and the action, but releases already acquired still
// run; their errors are reported only when no earlier error occurred.
func (h *Hooks) Dispatch(ctx context.Context, event HookEvent, hc *HookContext, action func(ctx context.Context) error) error {
	h.mu.RLock()
	entries := h.entries[event]
	h.mu.RUnlock()

	if hc == nil {
		hc = &HookContext{}
	}
	if hc.Values == nil {
		hc.Values = make(map[string]any)
	}

	var releases []func(ctx context.Context) error
	var dispatchErr error

	for _, entry := range entries {
		if entry.handler != nil {
			if err := entry.handler(ctx, hc); err != nil {
				dispatchErr = err
				break
			}
			continue
		}
		release, err := entry.wrap(ctx, hc)
		if err != nil {
			dispatchErr = err
			break
		}
		if release != nil {
			releases = append(releases, release)
		}
	}

	if dispatchErr == nil && action != nil {
		dispatchErr = action(ctx)
	}

	for i := len(releases) - 1; i >= 0; i-- {
		if err := releases[i](ctx); err != nil && dispatchErr == nil {
			dispatchErr = err
		}
	}

	return dispatchErr
}

// SignIn creates a session for an authenticated user, dispatching sign-in
// hooks around the session creation.
func (s *Server) SignIn(ctx context.Context, userID, ipAddress, userAgent string) (*storage.Session, error) {
	var session *storage.Session
	hc := &HookContext{UserID: userID}
	err := s.hooks.Dispatch(ctx, HookSignIn, hc, func(ctx context.Context) error {
		created, err := s.sessions.CreateSession(ctx, userID, ipAddress, userAgent)
		if err != nil {
			return err
		}
		session = created
		hc.SessionID = created.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SignOut deletes a session, dispatching sign-out hooks around the deletion.
func (s *Server) SignOut(ctx context.Context, sessionID string) error {
	session, err := s.sessions.store.GetSession(ctx, sessionID)
	hc := &HookContext{SessionID: sessionID}
	if err == nil {
		hc.UserID = session.UserID
	}
	return s.hooks.Dispatch(ctx, HookSignOut, hc, func(ctx context.Context) error {
		_, err := s.sessions.DeleteSession(ctx, sessionID)
		return err
	})
}
