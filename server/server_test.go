package server

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/mplemay/belgie-sub001/storage/memory"
)

const (
	testRedirectURI  = "https://app.example.com/callback"
	testClientSecret = "test-secret"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server over a fresh in-memory store. mutate may
// adjust the config before New runs.
func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	store := memory.New(discardLogger())
	t.Cleanup(func() { store.Close() })

	cfg := &Config{
		Store:        store,
		RedirectURIs: []string{testRedirectURI},
		BaseURL:      "https://auth.example.com",
		LoginURL:     "https://auth.example.com/login",
		ClientSecret: testClientSecret,
		ResourceURL:  "https://api.example.com",
		Logger:       discardLogger(),
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}
